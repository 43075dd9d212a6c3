// Package sensors feeds motion and location updates from outside sources
// into the meter's latest-value cells.
package sensors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/motion"
)

// ErrInvalidPayload is returned for sensor messages that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid sensor payload")

// MotionPayload is an accelerometer report. Either the three axes or a
// precomputed magnitude may be given; axes win when both are present.
type MotionPayload struct {
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Z         *float64 `json:"z,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`
}

// Value returns the acceleration magnitude in m/s².
func (p *MotionPayload) Value() (float64, error) {
	if p.X != nil && p.Y != nil && p.Z != nil {
		return motion.Sample{X: *p.X, Y: *p.Y, Z: *p.Z}.Magnitude(), nil
	}
	if p.Magnitude != nil {
		return *p.Magnitude, nil
	}
	return 0, fmt.Errorf("%w: need x, y and z or magnitude", ErrInvalidPayload)
}

// ParseMotion decodes a JSON motion payload or a bare number.
func ParseMotion(payload []byte) (float64, error) {
	payload = bytes.TrimSpace(payload)
	if v, err := strconv.ParseFloat(string(payload), 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, v)
		}
		return v, nil
	}

	var p MotionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p.Value()
}

// LocationPayload is a position report.
type LocationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // Unix milliseconds
}

// Fix converts the payload, using provider when the payload names none.
func (p *LocationPayload) Fix(provider string) location.Fix {
	f := location.Fix{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Provider:  p.Provider,
	}
	if f.Provider == "" {
		f.Provider = provider
	}
	if p.Altitude != nil {
		f.Altitude = *p.Altitude
		f.HasAltitude = true
	}
	if p.Timestamp > 0 {
		f.Time = time.UnixMilli(p.Timestamp)
	}
	return f
}

// ParseLocation decodes a JSON location payload.
func ParseLocation(payload []byte, provider string) (location.Fix, error) {
	var p LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return location.Fix{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	f := p.Fix(provider)
	if err := f.Validate(); err != nil {
		return location.Fix{}, err
	}
	return f, nil
}
