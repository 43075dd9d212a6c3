// Package gate classifies loudness readings, suppressing them while the
// device is being handled.
package gate

// Classification is the outcome of gating one reading.
type Classification string

const (
	// Suppressed means the device moved too much for the reading to be trusted.
	Suppressed Classification = "suppressed"
	// BelowThreshold means the reading is under the nuisance threshold.
	BelowThreshold Classification = "below_threshold"
	// Nuisance means the reading meets or exceeds the nuisance threshold.
	Nuisance Classification = "nuisance"
)

// Thresholds configures the classifier.
type Thresholds struct {
	// NuisanceDB is the level at or above which a reading is a nuisance.
	NuisanceDB float64 `json:"nuisance_db"`
	// MotionIgnore is the acceleration magnitude (m/s²) above which readings are suppressed.
	MotionIgnore float64 `json:"motion_ignore"`
}

// Classify maps a reading and the latest motion magnitude to exactly one
// classification. Motion takes priority over loudness.
func Classify(db, motion float64, th Thresholds) Classification {
	switch {
	case motion > th.MotionIgnore:
		return Suppressed
	case db >= th.NuisanceDB:
		return Nuisance
	default:
		return BelowThreshold
	}
}

// Label returns the status line shown to users.
func (c Classification) Label() string {
	switch c {
	case Suppressed:
		return "Phone moving — reading ignored"
	case Nuisance:
		return "NUISANCE — Exceeds threshold"
	case BelowThreshold:
		return "OK — Below threshold"
	default:
		return string(c)
	}
}

// Color returns the status background color as #RRGGBB.
func (c Classification) Color() string {
	switch c {
	case Suppressed:
		return "#FFBB33"
	case Nuisance:
		return "#FF4444"
	case BelowThreshold:
		return "#99CC00"
	default:
		return "#AAAAAA"
	}
}
