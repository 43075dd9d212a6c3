package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/sensors"
	"github.com/oszuidwest/noisesense/internal/server"
	"github.com/oszuidwest/noisesense/internal/types"
)

// maxSensorBody limits REST sensor payloads.
const maxSensorBody = 64 << 10

// deviceCacheTTL bounds how often capture devices are enumerated for status updates.
const deviceCacheTTL = 30 * time.Second

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxSensorBody))
}

// deviceCache remembers the last device enumeration per backend.
type deviceCache struct {
	mu      sync.Mutex
	backend string
	at      time.Time
	devices []types.AudioDevice
}

// devices returns the capture devices for backend, enumerating at most once per deviceCacheTTL.
func (s *Server) devices(backend string) []types.AudioDevice {
	c := &s.deviceCache
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == backend && time.Since(c.at) < deviceCacheTTL {
		return c.devices
	}
	c.devices = deviceList(backend)
	c.backend = backend
	c.at = time.Now()
	return c.devices
}

// handleAPIStatus returns the meter status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.statusSnapshot()
	status.APIKey = ""
	s.writeJSON(w, http.StatusOK, status)
}

// handleAPIConfig returns the meter configuration.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"audio_input": cfg.AudioInput,
		"backend":     cfg.AudioBackend,
		"block_size":  cfg.BlockSize,
		"settings":    s.config.MeterSettings(),
		"platform":    runtime.GOOS,
	})
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, s.devices(cfg.AudioBackend))
}

// handleAPIResult returns the latest classified reading.
// GET /api/result
func (s *Server) handleAPIResult(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.meter.LastResult()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no readings yet")
		return
	}
	s.writeJSON(w, http.StatusOK, server.NewResultView(res))
}

// handleAPIMotion stores a motion report: JSON with x, y, z or magnitude, or a bare number.
// POST /api/motion
func (s *Server) handleAPIMotion(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body: "+err.Error())
		return
	}
	mag, err := sensors.ParseMotion(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.meter.Motion().Store(mag, time.Now()); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{"magnitude": mag})
}

// handleAPILocation stores a location report.
// POST /api/location
func (s *Server) handleAPILocation(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body: "+err.Error())
		return
	}
	fix, err := sensors.ParseLocation(body, "api")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.meter.Location().Store(fix); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.meter.Location().Load())
}

// handleAPIMeter starts, stops, or toggles the meter.
// POST /api/meter/{start|stop|toggle}
func (s *Server) handleAPIMeter(w http.ResponseWriter, r *http.Request) {
	var err error
	switch r.PathValue("action") {
	case "start":
		_, err = s.commands.StartMeter()
	case "stop":
		err = s.meter.Stop()
	case "toggle":
		if s.meter.IsRunning() {
			err = s.meter.Stop()
		} else {
			_, err = s.commands.StartMeter()
		}
	default:
		s.writeError(w, http.StatusNotFound, "unknown meter action")
		return
	}

	switch {
	case errors.Is(err, meter.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, meter.ErrDeviceUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, s.meter.Status())
	}
}
