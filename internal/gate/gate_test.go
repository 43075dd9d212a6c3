package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var defaultThresholds = Thresholds{NuisanceDB: 65.0, MotionIgnore: 3.5}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		db     float64
		motion float64
		want   Classification
	}{
		{"quiet_still", 40, 0, BelowThreshold},
		{"loud_still", 83.98, 1.0, Nuisance},
		{"exactly_threshold", 65.0, 0, Nuisance},
		{"just_below_threshold", 64.999, 0, BelowThreshold},
		{"loud_moving", 83.98, 5.0, Suppressed},
		{"quiet_moving", 20, 5.0, Suppressed},
		{"motion_at_threshold_not_suppressed", 80, 3.5, Nuisance},
		{"resting_gravity", 50, 9.81, Suppressed},
		{"silence", -90, 0, BelowThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.db, tt.motion, defaultThresholds))
		})
	}
}

func TestClassify_SuppressionWinsRegardlessOfLoudness(t *testing.T) {
	loudness := []float64{math.Inf(-1), -180, -90, 0, 64.9, 65, 120, 1e9, math.MaxFloat64}
	for _, db := range loudness {
		assert.Equal(t, Suppressed, Classify(db, 3.5001, defaultThresholds), "db=%v", db)
	}
}

func TestClassify_Total(t *testing.T) {
	valid := map[Classification]bool{Suppressed: true, BelowThreshold: true, Nuisance: true}

	for db := -200.0; db <= 200; db += 7.3 {
		for motion := 0.0; motion <= 20; motion += 0.7 {
			got := Classify(db, motion, defaultThresholds)
			assert.True(t, valid[got], "db=%v motion=%v produced %q", db, motion, got)
		}
	}
}

func TestClassification_Presentation(t *testing.T) {
	for _, c := range []Classification{Suppressed, BelowThreshold, Nuisance} {
		assert.NotEmpty(t, c.Label())
		assert.Regexp(t, `^#[0-9A-F]{6}$`, c.Color())
	}
	assert.Equal(t, "unknown", Classification("unknown").Label())
}
