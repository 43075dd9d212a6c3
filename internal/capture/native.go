package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/util"
)

const (
	// nativeBufferSeconds is how much audio the ring buffer holds before
	// the callback starts dropping frames.
	nativeBufferSeconds = 4
	// firstPeriodTimeout bounds the wait for the device to deliver data.
	firstPeriodTimeout = 2 * time.Second
)

// Native is a miniaudio capture device feeding a blocking ring buffer.
type Native struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rb     *ringbuffer.RingBuffer
	raw    []byte

	period  atomic.Uint32
	dropped atomic.Uint64

	closeOnce sync.Once
}

// OpenNative initializes and starts a miniaudio capture device. An empty or
// "default" input selects the system default.
func OpenNative(input string, sampleRate int) (*Native, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}

	n := &Native{
		ctx: ctx,
		rb:  ringbuffer.New(sampleRate * audio.BytesPerSample * nativeBufferSeconds).SetBlocking(true),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if input != "" && input != "default" {
		info, err := findCaptureDevice(ctx, input)
		if err != nil {
			n.freeContext()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	firstPeriod := make(chan struct{})
	var signalOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if n.period.Load() == 0 {
				n.period.Store(frameCount)
				signalOnce.Do(func() { close(firstPeriod) })
			}
			if n.rb.Free() < len(input) {
				n.dropped.Add(uint64(len(input) / audio.BytesPerSample))
				return
			}
			if _, err := n.rb.Write(input); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrDeviceStopped) {
				slog.Debug("ring buffer write failed", "error", err)
			}
		},
		Stop: func() {
			n.rb.CloseWithError(ErrDeviceStopped)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		n.freeContext()
		return nil, util.WrapError("initialize capture device", err)
	}
	n.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		n.freeContext()
		return nil, util.WrapError("start capture device", err)
	}

	select {
	case <-firstPeriod:
	case <-time.After(firstPeriodTimeout):
		_ = n.Close()
		return nil, fmt.Errorf("capture device delivered no audio within %s", firstPeriodTimeout)
	}

	slog.Info("starting audio capture", "backend", "native", "input", input, "sample_rate", sampleRate, "period_frames", n.period.Load())
	return n, nil
}

// Read fills buf from the ring buffer, blocking until enough audio arrived.
func (n *Native) Read(buf []int16) (int, error) {
	size := len(buf) * audio.BytesPerSample
	if cap(n.raw) < size {
		n.raw = make([]byte, size)
	}
	raw := n.raw[:size]

	read, err := io.ReadFull(n.rb, raw)
	samples := audio.DecodeS16LE(buf, raw[:read])
	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return samples, nil
	default:
		return samples, err
	}
}

// MinBufferSize reports the period size the device negotiated.
func (n *Native) MinBufferSize() (int, bool) {
	p := n.period.Load()
	return int(p), p > 0
}

// Close stops the device and wakes any pending Read with ErrClosed.
func (n *Native) Close() error {
	n.closeOnce.Do(func() {
		n.rb.CloseWithError(ErrClosed)
		if n.device != nil {
			n.device.Uninit()
		}
		n.freeContext()
		if d := n.dropped.Load(); d > 0 {
			slog.Warn("capture dropped samples", "count", d)
		}
	})
	return nil
}

func (n *Native) freeContext() {
	if err := n.ctx.Uninit(); err != nil {
		slog.Warn("failed to uninit audio context", "error", err)
	}
	n.ctx.Free()
}

func findCaptureDevice(ctx *malgo.AllocatedContext, input string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("enumerate capture devices", err)
	}
	for i := range infos {
		if infos[i].Name() == input || infos[i].ID.String() == input {
			return &infos[i], nil
		}
	}
	for i := range infos {
		if strings.Contains(infos[i].Name(), input) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", audio.ErrNoAudioDevice, input)
}

// NativeDevices lists capture devices known to miniaudio.
func NativeDevices() ([]audio.Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("enumerate capture devices", err)
	}

	devices := make([]audio.Device, 0, len(infos))
	for i := range infos {
		// Skip the null backend's sink.
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, audio.Device{ID: infos[i].ID.String(), Name: infos[i].Name()})
	}
	return devices, nil
}
