package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Meter settings ---

// MeterUpdateRequest is the request body for meter/update.
type MeterUpdateRequest struct {
	CalibrationOffsetDB   *float64 `json:"calibration_offset_db" validate:"omitempty,gte=-60,lte=60"`
	NuisanceThresholdDB   *float64 `json:"nuisance_threshold_db" validate:"omitempty,gte=0,lte=150"`
	MotionIgnoreThreshold *float64 `json:"motion_ignore_threshold" validate:"omitempty,gte=0,lte=100"`
}

// --- Audio settings ---

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Input      *string `json:"input" validate:"omitempty,max=256"`
	Backend    *string `json:"backend" validate:"omitempty,oneof=process native"`
	SampleRate *int    `json:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	BlockSize  *int    `json:"block_size" validate:"omitempty,gte=0,lte=1048576"`
	Autostart  *bool   `json:"autostart"`
}

// --- Sensor input ---

// MotionUpdateRequest is the request body for motion/update. Browsers send
// the acceleration including gravity from DeviceMotionEvent.
type MotionUpdateRequest struct {
	X float64 `json:"x" validate:"gte=-1000,lte=1000"`
	Y float64 `json:"y" validate:"gte=-1000,lte=1000"`
	Z float64 `json:"z" validate:"gte=-1000,lte=1000"`
}

// LocationUpdateRequest is the request body for location/update.
type LocationUpdateRequest struct {
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
	Timestamp int64    `json:"timestamp" validate:"gte=0"` // Unix milliseconds
}

// StaticLocationRequest is the request body for location/static.
// Clear removes the fixed position.
type StaticLocationRequest struct {
	Clear     bool     `json:"clear"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude"`
}
