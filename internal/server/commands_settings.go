package server

import (
	"cmp"
	"log/slog"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/types"
)

// --- Meter handlers ---

// SyncSettings loads the persisted estimator and classifier settings into
// the meter. It fails with meter.ErrSessionActive while a session runs.
func (h *CommandHandler) SyncSettings() error {
	snap := h.cfg.Snapshot()
	return h.meter.UpdateSettings(meter.SettingsFrom(h.cfg.MeterSettings(), snap.BlockSize))
}

// StartMeter applies the persisted settings and starts a session.
func (h *CommandHandler) StartMeter() (string, error) {
	if err := h.SyncSettings(); err != nil && !h.meter.IsRunning() {
		return "", err
	}
	return h.meter.Start()
}

// handleMeterUpdate processes a meter/update command.
func (h *CommandHandler) handleMeterUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *MeterUpdateRequest) error {
		if h.meter.State() != types.StateStopped {
			return meter.ErrSessionActive
		}

		snap := h.cfg.Snapshot()
		m := config.MeterConfig{
			CalibrationOffsetDB:   snap.CalibrationOffsetDB,
			NuisanceThresholdDB:   snap.NuisanceThresholdDB,
			MotionIgnoreThreshold: snap.MotionIgnoreThreshold,
		}
		if req.CalibrationOffsetDB != nil {
			m.CalibrationOffsetDB = *req.CalibrationOffsetDB
		}
		if req.NuisanceThresholdDB != nil {
			m.NuisanceThresholdDB = *req.NuisanceThresholdDB
		}
		if req.MotionIgnoreThreshold != nil {
			m.MotionIgnoreThreshold = *req.MotionIgnoreThreshold
		}

		if err := h.cfg.SetMeter(m); err != nil {
			return err
		}
		slog.Info("meter/update: settings changed",
			"calibration_offset_db", m.CalibrationOffsetDB,
			"nuisance_threshold_db", m.NuisanceThresholdDB,
			"motion_ignore_threshold", m.MotionIgnoreThreshold)
		return h.SyncSettings()
	})
}

// handleMeterGet processes a meter/get command with the latest result.
func (h *CommandHandler) handleMeterGet(cmd WSCommand, send chan<- any) {
	res, ok := h.meter.LastResult()
	if !ok {
		SendSuccess(send, cmd.Type, nil)
		return
	}
	SendSuccess(send, cmd.Type, NewResultView(res))
}

// --- Audio handlers ---

// handleAudioUpdate processes an audio/update command.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AudioUpdateRequest) error {
		if h.meter.State() != types.StateStopped {
			return meter.ErrSessionActive
		}

		snap := h.cfg.Snapshot()
		a := config.AudioConfig{
			Input:      snap.AudioInput,
			Backend:    snap.AudioBackend,
			SampleRate: snap.SampleRate,
			BlockSize:  snap.BlockSize,
			Autostart:  snap.AudioAutostart,
		}
		if req.Input != nil {
			a.Input = *req.Input
		}
		if req.Backend != nil {
			a.Backend = *req.Backend
		}
		if req.SampleRate != nil {
			a.SampleRate = *req.SampleRate
		}
		if req.BlockSize != nil {
			a.BlockSize = *req.BlockSize
		}
		if req.Autostart != nil {
			a.Autostart = *req.Autostart
		}

		if err := h.cfg.SetAudio(a); err != nil {
			return err
		}
		slog.Info("audio/update: capture settings changed",
			"input", a.Input,
			"backend", cmp.Or(a.Backend, types.BackendProcess),
			"sample_rate", a.SampleRate,
			"block_size", a.BlockSize)
		return h.SyncSettings()
	})
}

// handleAudioGet processes an audio/get command.
func (h *CommandHandler) handleAudioGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, newConfigView(&snap).Audio)
}

// --- Config handlers ---

// configView is the configuration as shown to the web interface. Secrets are omitted.
type configView struct {
	Audio struct {
		Input      string `json:"input"`
		Backend    string `json:"backend"`
		SampleRate int    `json:"sample_rate"`
		BlockSize  int    `json:"block_size"`
		Autostart  bool   `json:"autostart"`
	} `json:"audio"`
	Meter    types.MeterSettings `json:"meter"`
	Motion   configMotionView    `json:"motion"`
	Location configLocationView  `json:"location"`
	MQTT     configMQTTView      `json:"mqtt"`
	Station  configStationView   `json:"station"`
}

type configMotionView struct {
	MQTTTopic     string `json:"mqtt_topic"`
	IIOEnabled    bool   `json:"iio_enabled"`
	IIODevice     string `json:"iio_device"`
	IIOIntervalMs int    `json:"iio_interval_ms"`
}

type configLocationView struct {
	Static    *config.StaticLocation `json:"static,omitempty"`
	MQTTTopic string                 `json:"mqtt_topic"`
}

type configMQTTView struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
}

type configStationView struct {
	Name       string `json:"name"`
	ColorLight string `json:"color_light"`
	ColorDark  string `json:"color_dark"`
}

func newConfigView(snap *config.Snapshot) configView {
	var v configView
	v.Audio.Input = snap.AudioInput
	v.Audio.Backend = cmp.Or(snap.AudioBackend, types.BackendProcess)
	v.Audio.SampleRate = snap.SampleRate
	v.Audio.BlockSize = snap.BlockSize
	v.Audio.Autostart = snap.AudioAutostart
	v.Meter = types.MeterSettings{
		SampleRate:            snap.SampleRate,
		CalibrationOffsetDB:   snap.CalibrationOffsetDB,
		NuisanceThresholdDB:   snap.NuisanceThresholdDB,
		MotionIgnoreThreshold: snap.MotionIgnoreThreshold,
	}
	v.Motion = configMotionView{
		MQTTTopic:     snap.MotionTopic,
		IIOEnabled:    snap.IIOEnabled,
		IIODevice:     snap.IIODevice,
		IIOIntervalMs: snap.IIOIntervalMs,
	}
	v.Location = configLocationView{
		Static:    snap.StaticLocation,
		MQTTTopic: snap.LocationTopic,
	}
	v.MQTT = configMQTTView{
		Broker:   snap.MQTTBroker,
		ClientID: snap.MQTTClientID,
		Username: snap.MQTTUsername,
	}
	v.Station = configStationView{
		Name:       snap.StationName,
		ColorLight: snap.StationColorLight,
		ColorDark:  snap.StationColorDark,
	}
	return v
}

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	trySend(send, "config/get", types.WSConfigResponse{
		Type:   "config",
		Config: newConfigView(&snap),
	})
}

// --- API key handlers ---

// handleRegenerateAPIKey processes a settings/regenerate-key command.
func (h *CommandHandler) handleRegenerateAPIKey(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "settings/regenerate-key"}, send, func() (any, error) {
		newKey, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		if err := h.cfg.SetAPIKey(newKey); err != nil {
			return nil, err
		}

		slog.Info("API key regenerated")

		return map[string]string{"api_key": newKey}, nil
	})
}
