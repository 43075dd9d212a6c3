package server

import (
	"log/slog"
	"time"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/motion"
)

// ProviderBrowser names location fixes reported by the web interface.
const ProviderBrowser = "browser"

// handleMotionUpdate processes a motion/update command. Successful updates
// are not acknowledged; they arrive at the device's motion event rate.
func (h *CommandHandler) handleMotionUpdate(cmd WSCommand, send chan<- any) {
	var req MotionUpdateRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	sample := motion.Sample{X: req.X, Y: req.Y, Z: req.Z}
	if err := h.meter.Motion().StoreSample(sample, time.Now()); err != nil {
		SendError(send, cmd.Type, err)
	}
}

// handleLocationUpdate processes a location/update command.
func (h *CommandHandler) handleLocationUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *LocationUpdateRequest) error {
		fix := location.Fix{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Accuracy:  req.Accuracy,
			Provider:  ProviderBrowser,
		}
		if req.Altitude != nil {
			fix.Altitude = *req.Altitude
			fix.HasAltitude = true
		}
		if req.Timestamp > 0 {
			fix.Time = time.UnixMilli(req.Timestamp)
		}
		return h.meter.Location().Store(fix)
	})
}

// handleStaticLocation processes a location/static command.
func (h *CommandHandler) handleStaticLocation(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *StaticLocationRequest) error {
		if req.Clear {
			slog.Info("location/static: fixed position cleared")
			return h.cfg.SetStaticLocation(nil)
		}

		static := &config.StaticLocation{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Altitude:  req.Altitude,
		}
		if err := h.cfg.SetStaticLocation(static); err != nil {
			return err
		}
		slog.Info("location/static: fixed position set", "latitude", req.Latitude, "longitude", req.Longitude)
		return h.meter.Location().Store(StaticFix(static))
	})
}

// StaticFix converts a configured fixed position to a location fix.
func StaticFix(s *config.StaticLocation) location.Fix {
	fix := location.Fix{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Provider:  "static",
	}
	if s.Altitude != nil {
		fix.Altitude = *s.Altitude
		fix.HasAltitude = true
	}
	return fix
}
