package util

import "time"

// Backoff spaces out attempts to acquire a capture device: each delay is
// twice the previous one, capped at the maximum. It is not safe for
// concurrent use; one retry loop owns it.
type Backoff struct {
	next     time.Duration
	initial  time.Duration
	maxDelay time.Duration
}

// NewBackoff returns a Backoff starting at initial and never exceeding maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{next: initial, initial: initial, maxDelay: maxDelay}
}

// Next returns the delay before the coming attempt.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(2*b.next, b.maxDelay)
	return d
}

// Reset starts the schedule over, for example after a session ran.
func (b *Backoff) Reset() {
	b.next = b.initial
}
