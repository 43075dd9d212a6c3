// Package motion holds the latest accelerometer magnitude reported by any
// sensor feed.
package motion

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// ErrInvalidSample is returned for non-finite or negative magnitudes.
var ErrInvalidSample = errors.New("invalid motion sample")

// Sample is one 3-axis accelerometer reading in m/s², gravity included.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the vector norm of the sample.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Cell is a latest-value container for the motion magnitude.
// Writers and readers never block each other; a reader may observe a value
// written arbitrarily long before the audio it is combined with.
// The zero value is ready to use and reads as 0 (at rest, never updated).
type Cell struct {
	bits      atomic.Uint64
	updatedAt atomic.Int64 // unix nanoseconds, 0 = never
}

// Store records a new magnitude.
func (c *Cell) Store(magnitude float64, at time.Time) error {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) || magnitude < 0 {
		return ErrInvalidSample
	}
	c.bits.Store(math.Float64bits(magnitude))
	c.updatedAt.Store(at.UnixNano())
	return nil
}

// StoreSample records the magnitude of a 3-axis sample.
func (c *Cell) StoreSample(s Sample, at time.Time) error {
	return c.Store(s.Magnitude(), at)
}

// Load returns the most recently stored magnitude.
func (c *Cell) Load() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Age reports how long ago the magnitude was stored.
// It returns false if nothing has been stored yet.
func (c *Cell) Age(now time.Time) (time.Duration, bool) {
	ns := c.updatedAt.Load()
	if ns == 0 {
		return 0, false
	}
	return now.Sub(time.Unix(0, ns)), true
}
