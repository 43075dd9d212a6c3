// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/noisesense/internal/types"
	"github.com/oszuidwest/noisesense/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultWebUsername       = "admin"
	DefaultWebPassword       = "noisesense"
	DefaultLogLevel          = "info"
	DefaultStationName       = "NoiseSense"
	DefaultStationColorLight = "#33B5E5"
	DefaultStationColorDark  = "#33B5E5"
	DefaultIIOIntervalMs     = 100
	DefaultMQTTClientID      = "noisesense"
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars.
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// validate is the validator for configuration structs.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("stationname", func(fl validator.FieldLevel) bool {
		return stationNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("rgbhex", func(fl validator.FieldLevel) bool {
		return stationColorPattern.MatchString(fl.Field().String())
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"`                                                // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port" validate:"gte=1,lte=65535"`                            // HTTP server port
	Username   string `json:"username" validate:"required,max=100"`                       // Login username
	Password   string `json:"password" validate:"required,max=500"`                       // Login password
	LogLevel   string `json:"log_level" validate:"omitempty,oneof=debug info warn error"` // Minimum log level
	APIKey     string `json:"api_key"`                                                    // API key for sensor and meter REST endpoints
}

// WebConfig holds branding settings.
type WebConfig struct {
	StationName string `json:"station_name" validate:"required,max=30,stationname"` // Display name
	ColorLight  string `json:"color_light" validate:"rgbhex"`                       // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark" validate:"rgbhex"`                        // Theme color for dark mode (#RRGGBB)
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	Input      string `json:"input"`                                             // Capture device identifier
	Backend    string `json:"backend" validate:"omitempty,oneof=process native"` // Capture backend
	SampleRate int    `json:"sample_rate" validate:"gte=8000,lte=192000"`        // Capture rate in Hz
	BlockSize  int    `json:"block_size" validate:"gte=0,lte=1048576"`           // Samples per block (0 = device default)
	Autostart  bool   `json:"autostart"`                                         // Start a session when the daemon starts
}

// MeterConfig holds the estimator and classifier settings.
type MeterConfig struct {
	CalibrationOffsetDB   float64 `json:"calibration_offset_db" validate:"gte=-60,lte=60"`  // Added to every estimate
	NuisanceThresholdDB   float64 `json:"nuisance_threshold_db" validate:"gte=0,lte=150"`   // Nuisance at or above this level
	MotionIgnoreThreshold float64 `json:"motion_ignore_threshold" validate:"gte=0,lte=100"` // Suppress above this magnitude (m/s²)
}

// IIOConfig holds Linux industrial I/O accelerometer settings.
type IIOConfig struct {
	Enabled    bool   `json:"enabled"`                                           // Poll a local accelerometer
	Device     string `json:"device"`                                            // sysfs device directory (empty = auto-detect)
	IntervalMs int    `json:"interval_ms" validate:"omitempty,gte=10,lte=10000"` // Poll interval
}

// MotionConfig holds motion input settings.
type MotionConfig struct {
	MQTTTopic string    `json:"mqtt_topic" validate:"omitempty,max=256"` // Topic carrying accelerometer reports
	IIO       IIOConfig `json:"iio"`
}

// StaticLocation is a fixed position for stationary installs.
type StaticLocation struct {
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// LocationConfig holds location input settings.
type LocationConfig struct {
	Static    *StaticLocation `json:"static,omitempty"`                        // Fixed position, if any
	MQTTTopic string          `json:"mqtt_topic" validate:"omitempty,max=256"` // Topic carrying position reports
}

// MQTTConfig holds broker settings for sensor input.
type MQTTConfig struct {
	Broker   string `json:"broker" validate:"omitempty,url"` // e.g. tcp://localhost:1883 (empty = disabled)
	ClientID string `json:"client_id" validate:"max=23"`     // MQTT 3.1 client ID limit
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System   SystemConfig   `json:"system"`
	Web      WebConfig      `json:"web"`
	Audio    AudioConfig    `json:"audio"`
	Meter    MeterConfig    `json:"meter"`
	Motion   MotionConfig   `json:"motion"`
	Location LocationConfig `json:"location"`
	MQTT     MQTTConfig     `json:"mqtt"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
			LogLevel: DefaultLogLevel,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultStationColorLight,
			ColorDark:   DefaultStationColorDark,
		},
		Audio: AudioConfig{
			Backend:    types.BackendProcess,
			SampleRate: types.DefaultSampleRate,
		},
		Meter: MeterConfig{
			CalibrationOffsetDB:   types.DefaultCalibrationOffsetDB,
			NuisanceThresholdDB:   types.DefaultNuisanceThresholdDB,
			MotionIgnoreThreshold: types.DefaultMotionIgnoreThreshold,
		},
		Motion: MotionConfig{
			IIO: IIOConfig{IntervalMs: DefaultIIOIntervalMs},
		},
		MQTT: MQTTConfig{
			ClientID: DefaultMQTTClientID,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
// Fields missing from the file keep their defaults.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		if c.System.APIKey == "" {
			if key, err := GenerateAPIKey(); err == nil {
				c.System.APIKey = key
			}
		}
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errs := make([]error, 0, len(verrs))
		for _, e := range verrs {
			errs = append(errs, fmt.Errorf("invalid %s %v: failed %q", strings.TrimPrefix(e.Namespace(), "Config."), e.Value(), e.Tag()))
		}
		return errors.Join(errs...)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields that have no
// meaningful zero.
func (c *Config) applyDefaults() {
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	c.System.Username = cmp.Or(c.System.Username, DefaultWebUsername)
	c.System.Password = cmp.Or(c.System.Password, DefaultWebPassword)
	c.System.LogLevel = cmp.Or(c.System.LogLevel, DefaultLogLevel)

	c.Web.StationName = cmp.Or(c.Web.StationName, DefaultStationName)
	c.Web.ColorLight = cmp.Or(c.Web.ColorLight, DefaultStationColorLight)
	c.Web.ColorDark = cmp.Or(c.Web.ColorDark, DefaultStationColorDark)

	c.Audio.Backend = cmp.Or(c.Audio.Backend, types.BackendProcess)
	c.Audio.SampleRate = cmp.Or(c.Audio.SampleRate, types.DefaultSampleRate)

	c.Motion.IIO.IntervalMs = cmp.Or(c.Motion.IIO.IntervalMs, DefaultIIOIntervalMs)
	c.MQTT.ClientID = cmp.Or(c.MQTT.ClientID, DefaultMQTTClientID)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// update applies fn, validates the result and persists it. The previous
// values are restored if validation fails.
func (c *Config) update(fn func(*Config)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	system, web, audio, meter := c.System, c.Web, c.Audio, c.Meter
	motion, location, mqtt := c.Motion, c.Location, c.MQTT

	fn(c)
	if err := c.validateLocked(); err != nil {
		c.System, c.Web, c.Audio, c.Meter = system, web, audio, meter
		c.Motion, c.Location, c.MQTT = motion, location, mqtt
		return err
	}
	return c.saveLocked()
}

// --- Getters for individual settings ---

// GetAPIKey returns the API key for REST endpoints.
func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// MeterSettings returns the settings a new recording session runs with.
func (c *Config) MeterSettings() types.MeterSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.MeterSettings{
		SampleRate:            c.Audio.SampleRate,
		CalibrationOffsetDB:   c.Meter.CalibrationOffsetDB,
		NuisanceThresholdDB:   c.Meter.NuisanceThresholdDB,
		MotionIgnoreThreshold: c.Meter.MotionIgnoreThreshold,
	}
}

// --- Setters for individual settings ---

// SetAudio updates the capture settings and saves the configuration.
func (c *Config) SetAudio(a AudioConfig) error {
	return c.update(func(c *Config) {
		c.Audio = a
	})
}

// SetMeter updates the estimator and classifier settings and saves the configuration.
func (c *Config) SetMeter(m MeterConfig) error {
	return c.update(func(c *Config) {
		c.Meter = m
	})
}

// SetStaticLocation updates the fixed position; nil clears it.
func (c *Config) SetStaticLocation(loc *StaticLocation) error {
	return c.update(func(c *Config) {
		c.Location.Static = loc
	})
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	return c.update(func(c *Config) {
		c.System.APIKey = key
	})
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	LogLevel    string
	FFmpegPath  string
	APIKey      string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	AudioInput     string
	AudioBackend   string
	SampleRate     int
	BlockSize      int
	AudioAutostart bool

	// Meter
	CalibrationOffsetDB   float64
	NuisanceThresholdDB   float64
	MotionIgnoreThreshold float64

	// Sensors
	MotionTopic    string
	IIOEnabled     bool
	IIODevice      string
	IIOIntervalMs  int
	StaticLocation *StaticLocation
	LocationTopic  string

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var static *StaticLocation
	if c.Location.Static != nil {
		s := *c.Location.Static
		static = &s
	}

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		LogLevel:    c.System.LogLevel,
		FFmpegPath:  c.System.FFmpegPath,
		APIKey:      c.System.APIKey,

		// Web/Branding
		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		// Audio
		AudioInput:     c.Audio.Input,
		AudioBackend:   c.Audio.Backend,
		SampleRate:     c.Audio.SampleRate,
		BlockSize:      c.Audio.BlockSize,
		AudioAutostart: c.Audio.Autostart,

		// Meter
		CalibrationOffsetDB:   c.Meter.CalibrationOffsetDB,
		NuisanceThresholdDB:   c.Meter.NuisanceThresholdDB,
		MotionIgnoreThreshold: c.Meter.MotionIgnoreThreshold,

		// Sensors
		MotionTopic:    c.Motion.MQTTTopic,
		IIOEnabled:     c.Motion.IIO.Enabled,
		IIODevice:      c.Motion.IIO.Device,
		IIOIntervalMs:  c.Motion.IIO.IntervalMs,
		StaticLocation: static,
		LocationTopic:  c.Location.MQTTTopic,

		// MQTT
		MQTTBroker:   c.MQTT.Broker,
		MQTTClientID: c.MQTT.ClientID,
		MQTTUsername: c.MQTT.Username,
		MQTTPassword: c.MQTT.Password,
	}
}

// HasMQTT reports whether a broker is configured and any topic is set.
func (s *Snapshot) HasMQTT() bool {
	return s.MQTTBroker != "" && (s.MotionTopic != "" || s.LocationTopic != "")
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
