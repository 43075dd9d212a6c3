package sensors

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/motion"
)

func TestParseMotion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		wantErr bool
	}{
		{"bare_number", " 4.2\n", 4.2, false},
		{"axes", `{"x":3,"y":4,"z":0}`, 5, false},
		{"magnitude", `{"magnitude":1.5}`, 1.5, false},
		{"axes_win", `{"x":0,"y":0,"z":2,"magnitude":9}`, 2, false},
		{"partial_axes", `{"x":1,"y":2}`, 0, true},
		{"garbage", `not json`, 0, true},
		{"nan", `NaN`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMotion([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseLocation(t *testing.T) {
	f, err := ParseLocation([]byte(`{"latitude":51.5,"longitude":3.61,"altitude":12.5,"timestamp":1760860800000}`), ProviderMQTT)
	require.NoError(t, err)
	assert.Equal(t, 51.5, f.Latitude)
	assert.True(t, f.HasAltitude)
	assert.Equal(t, 12.5, f.Altitude)
	assert.Equal(t, ProviderMQTT, f.Provider)
	assert.Equal(t, int64(1760860800000), f.Time.UnixMilli())

	f, err = ParseLocation([]byte(`{"latitude":1,"longitude":2,"provider":"gps"}`), ProviderMQTT)
	require.NoError(t, err)
	assert.False(t, f.HasAltitude)
	assert.Equal(t, "gps", f.Provider)

	_, err = ParseLocation([]byte(`{"latitude":123,"longitude":2}`), ProviderMQTT)
	assert.ErrorIs(t, err, location.ErrInvalidFix)

	_, err = ParseLocation([]byte(`[`), ProviderMQTT)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

// fakeMessage implements mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestSubscriber_Handlers(t *testing.T) {
	mc := &motion.Cell{}
	lc := &location.Cell{}
	s := NewSubscriber(MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "test"}, mc, lc)

	s.handleMotion(nil, &fakeMessage{topic: "noise/motion", payload: []byte(`{"x":0,"y":0,"z":9.81}`)})
	assert.InDelta(t, 9.81, mc.Load(), 1e-9)

	s.handleMotion(nil, &fakeMessage{topic: "noise/motion", payload: []byte(`-1`)})
	assert.InDelta(t, 9.81, mc.Load(), 1e-9, "negative magnitudes are rejected")

	s.handleLocation(nil, &fakeMessage{topic: "noise/location", payload: []byte(`{"latitude":52,"longitude":4}`)})
	require.NotNil(t, lc.Load())
	assert.Equal(t, ProviderMQTT, lc.Load().Provider)

	s.handleLocation(nil, &fakeMessage{topic: "noise/location", payload: []byte(`{}{`)})
	assert.Equal(t, 52.0, lc.Load().Latitude)

	assert.False(t, s.IsConnected())
}

func writeSysfs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o600))
	}
}

func TestAccelerometer(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, filepath.Join(root, "iio:device0"), map[string]string{"name": "als"})
	dev := filepath.Join(root, "iio:device1")
	writeSysfs(t, dev, map[string]string{
		"in_accel_x_raw":   "300",
		"in_accel_y_raw":   "400",
		"in_accel_z_raw":   "0",
		"in_accel_scale":   "0.01",
		"in_accel_z_scale": "0.5",
	})

	dir, err := FindAccelerometer(root)
	require.NoError(t, err)
	assert.Equal(t, dev, dir)

	acc, err := OpenAccelerometer(dir)
	require.NoError(t, err)

	s, err := acc.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, s.X, 1e-9)
	assert.InDelta(t, 4.0, s.Y, 1e-9)
	assert.InDelta(t, 5.0, s.Magnitude(), 1e-9)

	mc := &motion.Cell{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		acc.Poll(ctx, 5*time.Millisecond, mc)
		close(done)
	}()
	assert.Eventually(t, func() bool { return math.Abs(mc.Load()-5) < 1e-9 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestFindAccelerometer_None(t *testing.T) {
	_, err := FindAccelerometer(t.TempDir())
	assert.ErrorIs(t, err, ErrNoAccelerometer)

	_, err = OpenAccelerometer(t.TempDir())
	assert.ErrorIs(t, err, ErrNoAccelerometer)
}
