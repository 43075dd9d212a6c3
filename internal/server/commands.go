package server

import (
	"encoding/json"
	"log/slog"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/meter"
)

// WSCommand is a command received from a WebSocket client. Type has the
// form "namespace/action", for example "meter/start" or "motion/update".
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// route handles one command type.
type route struct {
	run func(cmd WSCommand, send chan<- any)
	// quiet routes fire many times per second and skip the status refresh.
	quiet bool
}

// CommandHandler dispatches WebSocket commands to the meter and config.
type CommandHandler struct {
	cfg    *config.Config
	meter  *meter.Meter
	routes map[string]route
}

// NewCommandHandler returns a handler operating on cfg and m.
func NewCommandHandler(cfg *config.Config, m *meter.Meter) *CommandHandler {
	h := &CommandHandler{cfg: cfg, meter: m}
	h.routes = map[string]route{
		"meter/start":  {run: h.handleMeterStart},
		"meter/stop":   {run: h.handleMeterStop},
		"meter/toggle": {run: h.handleMeterToggle},
		"meter/update": {run: h.handleMeterUpdate},
		"meter/get":    {run: h.handleMeterGet},

		"audio/update": {run: h.handleAudioUpdate},
		"audio/get":    {run: h.handleAudioGet},

		"motion/update":   {run: h.handleMotionUpdate, quiet: true},
		"location/update": {run: h.handleLocationUpdate},
		"location/static": {run: h.handleStaticLocation},

		"settings/regenerate-key": {run: func(_ WSCommand, send chan<- any) { h.handleRegenerateAPIKey(send) }},
		"config/get":              {run: func(_ WSCommand, send chan<- any) { h.handleConfigGet(send) }},
		// The refresh that follows every non-quiet command is the reply.
		"status/get": {run: func(WSCommand, chan<- any) {}},
	}
	return h
}

// Handle runs cmd and then calls refresh so the client sees the new status.
// Unknown commands are logged and ignored.
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, refresh func()) {
	r, ok := h.routes[cmd.Type]
	if !ok {
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		return
	}
	r.run(cmd, send)
	if !r.quiet {
		refresh()
	}
}

func (h *CommandHandler) handleMeterStart(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		id, err := h.StartMeter()
		if err != nil {
			return nil, err
		}
		return map[string]string{"session_id": id}, nil
	})
}

func (h *CommandHandler) handleMeterStop(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.meter.Stop()
	})
}

func (h *CommandHandler) handleMeterToggle(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		if h.meter.IsRunning() {
			return map[string]bool{"running": false}, h.meter.Stop()
		}
		_, err := h.StartMeter()
		return map[string]bool{"running": err == nil}, err
	})
}
