// Package types provides shared type definitions used across the meter.
package types

import (
	"time"
)

// MeterState represents the current state of a recording session.
type MeterState string

const (
	// StateStopped indicates no session is running.
	StateStopped MeterState = "stopped"
	// StateStarting indicates a capture device is being acquired.
	StateStarting MeterState = "starting"
	// StateRunning indicates the read loop is producing readings.
	StateRunning MeterState = "running"
	// StateStopping indicates the read loop is shutting down.
	StateStopping MeterState = "stopping"
)

// Capture backends.
const (
	// BackendProcess captures through arecord or FFmpeg over a pipe.
	BackendProcess = "process"
	// BackendNative captures through miniaudio.
	BackendNative = "native"
)

const (
	// InitialRetryDelay is the starting delay between autostart attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between autostart attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxRetries is the maximum number of autostart attempts.
	MaxRetries = 10
)

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// Meter defaults.
const (
	// DefaultSampleRate is the capture rate in Hz.
	DefaultSampleRate = 44100
	// DefaultCalibrationOffsetDB is added to every estimate.
	DefaultCalibrationOffsetDB = 0.0
	// DefaultNuisanceThresholdDB is the level at or above which a reading is a nuisance.
	DefaultNuisanceThresholdDB = 65.0
	// DefaultMotionIgnoreThreshold is the magnitude in m/s² above which readings are suppressed.
	DefaultMotionIgnoreThreshold = 3.5
)

// MeterStatus contains a summary of the recording session.
type MeterStatus struct {
	State     MeterState `json:"state"`               // Current session state
	SessionID string     `json:"session_id,omitzero"` // Running session identifier
	Uptime    string     `json:"uptime,omitzero"`     // Time since start
	Readings  uint64     `json:"readings"`            // Readings produced this session
	BlockSize int        `json:"block_size,omitzero"` // Samples per block
	LastError string     `json:"last_error,omitzero"` // Most recent error
}

// MeterSettings are the thresholds the classifier runs with.
type MeterSettings struct {
	SampleRate            int     `json:"sample_rate"`
	CalibrationOffsetDB   float64 `json:"calibration_offset_db"`
	NuisanceThresholdDB   float64 `json:"nuisance_threshold_db"`
	MotionIgnoreThreshold float64 `json:"motion_ignore_threshold"`
}

// WSStatusResponse is sent to clients with full meter status.
type WSStatusResponse struct {
	Type            string        `json:"type"`             // Message type identifier
	FFmpegAvailable bool          `json:"ffmpeg_available"` // FFmpeg binary is available
	Meter           MeterStatus   `json:"meter"`            // Session status
	Settings        MeterSettings `json:"settings"`         // Active thresholds
	AudioInput      string        `json:"audio_input"`      // Selected audio input device
	Backend         string        `json:"backend"`          // Capture backend
	Platform        string        `json:"platform"`         // Operating system platform
	APIKey          string        `json:"api_key"`          // API key for sensor and meter control
	Devices         []AudioDevice `json:"devices"`          // Available audio devices
	Version         VersionInfo   `json:"version"`          // Version information
}

// WSResultResponse is sent to clients for every classified reading.
type WSResultResponse struct {
	Type   string `json:"type"`   // Message type identifier
	Result any    `json:"result"` // Classified reading
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
