// Package capture provides audio devices that deliver mono 16-bit PCM in
// fixed-size blocks.
package capture

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/types"
)

var (
	// ErrClosed is returned when reading from a device after Close.
	ErrClosed = errors.New("capture device closed")
	// ErrUnsupportedFormat is returned for audio that is not 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrDeviceStopped is returned when the audio backend stops a device on its own.
	ErrDeviceStopped = errors.New("capture device stopped")
	// ErrUnknownBackend is returned for a backend name other than process or native.
	ErrUnknownBackend = errors.New("unknown capture backend")
)

// Device is a source of mono 16-bit PCM samples.
//
// Read blocks until buf is filled or the stream ends and returns the number
// of samples written. At the end of the stream it returns 0 and io.EOF.
// Close releases the underlying resource and is safe to call more than once.
type Device interface {
	Read(buf []int16) (int, error)
	MinBufferSize() (samples int, ok bool)
	Close() error
}

// SampleRater is implemented by devices whose sample rate is fixed by the
// source rather than by configuration.
type SampleRater interface {
	SampleRate() int
}

// Opener acquires a fresh device. Every recording session opens its own.
type Opener func() (Device, error)

// Config selects and parameterizes a capture backend.
type Config struct {
	Backend    string
	Input      string
	SampleRate int
	FFmpegPath string
}

// NewOpener returns an Opener for the configured backend.
func NewOpener(cfg Config) (Opener, error) {
	switch cfg.Backend {
	case "", types.BackendProcess:
		return func() (Device, error) {
			name, args, err := audio.BuildCaptureCommand(cfg.Input, cfg.FFmpegPath, cfg.SampleRate)
			if err != nil {
				return nil, err
			}
			return StartProcess(name, args)
		}, nil
	case types.BackendNative:
		return func() (Device, error) {
			return OpenNative(cfg.Input, cfg.SampleRate)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// FileOpener returns an Opener that reads a WAV file.
func FileOpener(path string) Opener {
	return func() (Device, error) {
		return OpenWAV(path)
	}
}
