package location

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_Empty(t *testing.T) {
	var c Cell
	assert.Nil(t, c.Load())

	var f *Fix
	assert.Equal(t, "Location: unknown", f.String())
}

func TestCell_StoreAndLoad(t *testing.T) {
	var c Cell
	require.NoError(t, c.Store(Fix{Latitude: 51.5, Longitude: 3.6, Provider: "gps"}))
	require.NoError(t, c.Store(Fix{Latitude: 51.6, Longitude: 3.7, Altitude: 12.34, HasAltitude: true, Provider: "network"}))

	got := c.Load()
	require.NotNil(t, got)
	assert.Equal(t, 51.6, got.Latitude)
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, "Lat: 51.60000\nLng: 3.70000\nAlt: 12.3 m\nProvider: network", got.String())

	got.Latitude = 0
	assert.Equal(t, 51.6, c.Load().Latitude, "Load returns a copy")
}

func TestCell_KeepsExplicitTime(t *testing.T) {
	var c Cell
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	require.NoError(t, c.Store(Fix{Latitude: 1, Longitude: 2, Time: at}))
	assert.Equal(t, at, c.Load().Time)
}

func TestFix_Validate(t *testing.T) {
	tests := []struct {
		name string
		fix  Fix
		ok   bool
	}{
		{"origin", Fix{}, true},
		{"extremes", Fix{Latitude: -90, Longitude: 180}, true},
		{"lat_too_high", Fix{Latitude: 90.1}, false},
		{"lng_too_low", Fix{Longitude: -180.5}, false},
		{"nan_lat", Fix{Latitude: math.NaN()}, false},
		{"inf_altitude", Fix{HasAltitude: true, Altitude: math.Inf(1)}, false},
		{"inf_altitude_ignored_without_flag", Fix{Altitude: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fix.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFix)
			}
		})
	}
}

func TestFix_StringWithoutAltitude(t *testing.T) {
	f := &Fix{Latitude: 1.234567, Longitude: -2.5, Altitude: 99, Provider: "static"}
	assert.Equal(t, "Lat: 1.23457\nLng: -2.50000\nAlt: 0.0 m\nProvider: static", f.String())
}
