// Package location holds the latest known device position.
package location

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// ErrInvalidFix is returned for coordinates outside the valid range.
var ErrInvalidFix = errors.New("invalid location fix")

// Fix is one position report.
type Fix struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    float64   `json:"altitude,omitzero"`
	HasAltitude bool      `json:"has_altitude,omitzero"`
	Accuracy    float64   `json:"accuracy,omitzero"` // meters
	Provider    string    `json:"provider,omitzero"`
	Time        time.Time `json:"time"`
}

// Validate checks that the coordinates are finite and in range.
func (f *Fix) Validate() error {
	switch {
	case math.IsNaN(f.Latitude) || f.Latitude < -90 || f.Latitude > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidFix, f.Latitude)
	case math.IsNaN(f.Longitude) || f.Longitude < -180 || f.Longitude > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidFix, f.Longitude)
	case f.HasAltitude && (math.IsNaN(f.Altitude) || math.IsInf(f.Altitude, 0)):
		return fmt.Errorf("%w: altitude %v", ErrInvalidFix, f.Altitude)
	}
	return nil
}

// String formats the fix the way the meter display shows it.
func (f *Fix) String() string {
	if f == nil {
		return "Location: unknown"
	}
	alt := 0.0
	if f.HasAltitude {
		alt = f.Altitude
	}
	return fmt.Sprintf("Lat: %.5f\nLng: %.5f\nAlt: %.1f m\nProvider: %s",
		f.Latitude, f.Longitude, alt, f.Provider)
}

// Cell is a latest-value container for the device position.
// The zero value holds no fix.
type Cell struct {
	fix atomic.Pointer[Fix]
}

// Store validates and records a fix. A zero Time is replaced with now.
func (c *Cell) Store(f Fix) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	c.fix.Store(&f)
	return nil
}

// Load returns a copy of the latest fix, or nil if none was stored.
func (c *Cell) Load() *Fix {
	f := c.fix.Load()
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}
