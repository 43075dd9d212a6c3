package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/capture"
	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/gate"
	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin", "meter.local:8080", "", true},
		{"same host", "meter.local:8080", "http://meter.local:8080", true},
		{"localhost", "10.0.0.5:8080", "http://localhost:3000", true},
		{"loopback", "meter.local", "http://127.0.0.1", true},
		{"private network", "meter.local", "http://192.168.1.20", true},
		{"public host", "meter.local", "https://example.com", false},
		{"public ip", "meter.local", "http://8.8.8.8", false},
		{"garbage", "meter.local", "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

func TestSessionManager_LoginAndLogout(t *testing.T) {
	sm := NewSessionManager()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	assert.False(t, sm.Login(w, r, "admin", "wrong", "admin", "secret"))
	assert.Empty(t, w.Result().Cookies())

	w = httptest.NewRecorder()
	require.True(t, sm.Login(w, r, "admin", "secret", "admin", "secret"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	authed := httptest.NewRequest(http.MethodGet, "/", nil)
	authed.AddCookie(cookies[0])
	assert.True(t, sm.Authenticated(authed))

	sm.Logout(httptest.NewRecorder(), authed)
	assert.False(t, sm.Authenticated(authed))
}

func TestSessionManager_AuthMiddlewareRedirects(t *testing.T) {
	sm := NewSessionManager()
	called := false
	h := sm.AuthMiddleware()(func(http.ResponseWriter, *http.Request) { called = true })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSessionManager_CSRFTokenIsSingleUse(t *testing.T) {
	sm := NewSessionManager()
	token := sm.CreateCSRFToken()
	require.NotEmpty(t, token)

	assert.True(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken(""))
}

func TestTokenStore_Expiry(t *testing.T) {
	s := newTokenStore(time.Millisecond)
	token := s.issue()
	time.Sleep(5 * time.Millisecond)
	assert.False(t, s.check(token, false))
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		ok    bool
		field string
	}{
		{"valid", `{"x": 0.1, "y": 9.8, "z": 0.2}`, true, ""},
		{"invalid json", `{"x": `, false, ""},
		{"out of range", `{"x": 5000, "y": 0, "z": 0}`, false, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send := make(chan any, 1)
			var req MotionUpdateRequest
			ok := DecodeAndValidate(WSCommand{Type: "motion/update", Data: json.RawMessage(tt.data)}, send, &req)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Empty(t, send)
				return
			}

			msg := (<-send).(reply)
			assert.Equal(t, "motion/update_result", msg.Type)
			assert.Equal(t, false, msg.Success)
			if tt.field != "" {
				verr := msg.Error.(*types.ValidationError)
				require.Len(t, verr.Errors, 1)
				assert.Equal(t, tt.field, verr.Errors[0].Field)
				assert.Equal(t, "must be less than or equal to 1000", verr.Errors[0].Message)
			}
		})
	}
}

func TestTrySend_DropsWhenFull(t *testing.T) {
	send := make(chan any, 1)
	SendSuccess(send, "a", nil)
	SendSuccess(send, "b", nil)
	assert.Len(t, send, 1)
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	h.Present(meter.Result{
		Reading:        audio.Reading{DB: 70, Seq: 1},
		Classification: gate.Nuisance,
		SessionID:      "s1",
	})

	for _, ch := range []chan types.WSResultResponse{a, b} {
		msg := <-ch
		assert.Equal(t, "result", msg.Type)
		view := msg.Result.(ResultView)
		assert.Equal(t, 70.0, view.DB)
		assert.Equal(t, gate.Nuisance.Label(), view.Label)
		assert.Equal(t, gate.Nuisance.Color(), view.Color)
		assert.Equal(t, "Location: unknown", view.LocationText)
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
	h.Unsubscribe(b)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := range subscriberBuffer + 5 {
		h.Present(meter.Result{Reading: audio.Reading{Seq: uint64(i + 1)}})
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, uint64(1), (<-ch).Result.(ResultView).Seq)
}

// eofDevice ends immediately.
type eofDevice struct{}

func (eofDevice) Read([]int16) (int, error)  { return 0, io.EOF }
func (eofDevice) MinBufferSize() (int, bool) { return 0, false }
func (eofDevice) Close() error               { return nil }

func newTestHandler(t *testing.T, opener capture.Opener) (*CommandHandler, *config.Config, *meter.Meter) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	m := meter.New(meter.Options{
		Opener:   opener,
		Settings: meter.SettingsFrom(cfg.MeterSettings(), 0),
	})
	runMeter(t, m)
	return NewCommandHandler(cfg, m), cfg, m
}

// runMeter runs the dispatcher until the test ends.
func runMeter(t *testing.T, m *meter.Meter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		_ = m.Stop()
		cancel()
		<-done
	})
}

func run(h *CommandHandler, typ, data string) chan any {
	send := make(chan any, 4)
	cmd := WSCommand{Type: typ}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	h.Handle(cmd, send, func() {})
	return send
}

func TestCommands_MotionUpdateStoresMagnitude(t *testing.T) {
	h, _, m := newTestHandler(t, nil)

	send := run(h, "motion/update", `{"x": 3, "y": 4, "z": 0}`)
	assert.Empty(t, send)
	assert.InDelta(t, 5.0, m.Motion().Load(), 1e-9)
}

func TestCommands_LocationUpdate(t *testing.T) {
	h, _, m := newTestHandler(t, nil)

	send := run(h, "location/update", `{"latitude": 52.1, "longitude": 5.2, "altitude": 3, "accuracy": 12}`)
	msg := (<-send).(reply)
	assert.Equal(t, true, msg.Success)

	fix := m.Location().Load()
	require.NotNil(t, fix)
	assert.Equal(t, ProviderBrowser, fix.Provider)
	assert.True(t, fix.HasAltitude)
	assert.Equal(t, 12.0, fix.Accuracy)

	send = run(h, "location/update", `{"latitude": 95, "longitude": 0}`)
	msg = (<-send).(reply)
	assert.Equal(t, false, msg.Success)
}

func TestCommands_StaticLocationPersists(t *testing.T) {
	h, cfg, m := newTestHandler(t, nil)

	send := run(h, "location/static", `{"latitude": 51.5, "longitude": 3.6}`)
	assert.Equal(t, true, (<-send).(reply).Success)

	snap := cfg.Snapshot()
	require.NotNil(t, snap.StaticLocation)
	assert.Equal(t, 51.5, snap.StaticLocation.Latitude)
	assert.Equal(t, "static", m.Location().Load().Provider)

	send = run(h, "location/static", `{"clear": true}`)
	assert.Equal(t, true, (<-send).(reply).Success)
	assert.Nil(t, cfg.Snapshot().StaticLocation)
}

func TestCommands_MeterUpdate(t *testing.T) {
	h, cfg, m := newTestHandler(t, nil)

	send := run(h, "meter/update", `{"nuisance_threshold_db": 55}`)
	assert.Equal(t, true, (<-send).(reply).Success)
	assert.Equal(t, 55.0, cfg.Snapshot().NuisanceThresholdDB)
	assert.Equal(t, 55.0, m.Settings().Thresholds.NuisanceDB)
	assert.Equal(t, types.DefaultMotionIgnoreThreshold, m.Settings().Thresholds.MotionIgnore)

	send = run(h, "meter/update", `{"nuisance_threshold_db": 500}`)
	assert.Equal(t, false, (<-send).(reply).Success)
	assert.Equal(t, 55.0, cfg.Snapshot().NuisanceThresholdDB)
}

func TestCommands_MeterStartFailureReported(t *testing.T) {
	h, _, m := newTestHandler(t, func() (capture.Device, error) {
		return nil, errors.New("no such device")
	})

	send := run(h, "meter/start", "")
	msg := (<-send).(reply)
	assert.Equal(t, "meter/start_result", msg.Type)
	assert.Equal(t, false, msg.Success)
	assert.Contains(t, msg.Error, "audio device unavailable")
	assert.Equal(t, types.StateStopped, m.State())
}

func TestCommands_MeterStartEndsOnEOF(t *testing.T) {
	h, _, m := newTestHandler(t, func() (capture.Device, error) {
		return eofDevice{}, nil
	})

	send := run(h, "meter/start", "")
	msg := (<-send).(reply)
	require.Equal(t, true, msg.Success, msg.Error)
	assert.NotEmpty(t, msg.Data.(map[string]string)["session_id"])

	assert.Eventually(t, func() bool { return m.State() == types.StateStopped }, 2*time.Second, 10*time.Millisecond)
}

func TestCommands_ConfigGetOmitsSecrets(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	send := run(h, "config/get", "")
	resp := (<-send).(types.WSConfigResponse)
	assert.Equal(t, "config", resp.Type)

	data, err := json.Marshal(resp.Config)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "password")
	assert.Contains(t, string(data), `"nuisance_threshold_db":65`)
}

func TestStaticFix(t *testing.T) {
	alt := 12.5
	fix := StaticFix(&config.StaticLocation{Latitude: 1, Longitude: 2, Altitude: &alt})
	assert.Equal(t, location.Fix{Latitude: 1, Longitude: 2, Altitude: 12.5, HasAltitude: true, Provider: "static"}, fix)
}
