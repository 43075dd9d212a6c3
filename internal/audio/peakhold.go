package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is how long the display peak is held before it decays.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks the held maximum shown next to the meter.
// It only affects display; classification never reads it.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
	floor        float64
}

// NewPeakHolder creates a peak holder that rests at floor and holds each
// peak for hold.
func NewPeakHolder(floor float64, hold time.Duration) *PeakHolder {
	return &PeakHolder{
		held:         floor,
		floor:        floor,
		holdDuration: hold,
	}
}

// Update records a new level and returns the held peak.
func (p *PeakHolder) Update(db float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = db
		p.heldAt = now
	}
	return p.held
}

// Reset returns the held peak to the floor.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = p.floor
	p.heldAt = time.Time{}
}
