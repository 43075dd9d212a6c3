package main

import (
	"cmp"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/server"
	"github.com/oszuidwest/noisesense/internal/types"
)

// Server serves the meter page, the live WebSocket feed and the REST API.
type Server struct {
	config          *config.Config
	meter           *meter.Meter
	hub             *server.Hub
	sessions        *server.SessionManager
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
	deviceCache     deviceCache
}

// NewServer wires a Server around m. Results presented to hub reach every
// connected browser.
func NewServer(cfg *config.Config, m *meter.Meter, hub *server.Hub, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		meter:           m,
		hub:             hub,
		sessions:        server.NewSessionManager(),
		commands:        server.NewCommandHandler(cfg, m),
		version:         NewVersionChecker(releaseAPIBase),
		ffmpegAvailable: ffmpegAvailable,
	}
}

// statusSnapshot collects the meter, settings and environment into one message.
func (s *Server) statusSnapshot() types.WSStatusResponse {
	snap := s.config.Snapshot()
	backend := cmp.Or(snap.AudioBackend, types.BackendProcess)

	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Meter:           s.meter.Status(),
		Settings:        s.config.MeterSettings(),
		AudioInput:      snap.AudioInput,
		Backend:         backend,
		Platform:        runtime.GOOS,
		APIKey:          snap.APIKey,
		Devices:         s.devices(backend),
		Version:         s.version.Info(),
	}
}

// SetupRoutes builds the HTTP handler. Pages and the WebSocket need a login
// session; the REST API takes an X-API-Key header or a session.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	session := s.sessions.AuthMiddleware()

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("GET /style.css", s.handleAsset)
	mux.HandleFunc("GET /favicon.svg", s.handleFavicon)

	api := map[string]http.HandlerFunc{
		"GET /api/status":          s.handleAPIStatus,
		"GET /api/config":          s.handleAPIConfig,
		"GET /api/devices":         s.handleAPIDevices,
		"GET /api/result":          s.handleAPIResult,
		"POST /api/motion":         s.handleAPIMotion,
		"POST /api/location":       s.handleAPILocation,
		"POST /api/meter/{action}": s.handleAPIMeter,
	}
	for pattern, h := range api {
		mux.HandleFunc(pattern, s.requireAPIKey(h))
	}

	mux.HandleFunc("/ws", session(s.handleWebSocket))
	mux.HandleFunc("/", session(s.handleIndex))

	return withSecurityHeaders(mux)
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// requireAPIKey admits requests carrying the configured key or a valid session.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sessions.Authenticated(r) {
			next(w, r)
			return
		}

		key := s.config.GetAPIKey()
		if key == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(key)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start listens on the configured port in the background. The returned
// server is used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := net.JoinHostPort("", strconv.Itoa(s.config.Snapshot().WebPort))
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
