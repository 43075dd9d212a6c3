package capture

import (
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV replays a 16-bit PCM WAV file as a capture device. Multi-channel files
// are mixed down to mono.
type WAV struct {
	file    *os.File
	decoder *wav.Decoder
	chans   int
	rate    int
	buf     *goaudio.IntBuffer

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// OpenWAV opens path and validates its format.
func OpenWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	if decoder.BitDepth != 16 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, decoder.BitDepth)
	}
	if decoder.NumChans < 1 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, decoder.NumChans)
	}

	return &WAV{
		file:    f,
		decoder: decoder,
		chans:   int(decoder.NumChans),
		rate:    int(decoder.SampleRate),
	}, nil
}

// Read decodes up to len(buf) mono samples. It returns io.EOF once the
// file is exhausted.
func (w *WAV) Read(buf []int16) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	want := len(buf) * w.chans
	if w.buf == nil || cap(w.buf.Data) < want {
		w.buf = &goaudio.IntBuffer{
			Data:   make([]int, want),
			Format: &goaudio.Format{SampleRate: w.rate, NumChannels: w.chans},
		}
	}
	w.buf.Data = w.buf.Data[:want]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil {
		return 0, err
	}
	frames := n / w.chans
	if frames == 0 {
		return 0, io.EOF
	}

	for i := range frames {
		var sum int
		for c := range w.chans {
			sum += w.buf.Data[i*w.chans+c]
		}
		buf[i] = int16(sum / w.chans)
	}
	return frames, nil
}

// MinBufferSize reports that a file has no preferred block size.
func (w *WAV) MinBufferSize() (int, bool) {
	return 0, false
}

// SampleRate returns the rate recorded in the file header.
func (w *WAV) SampleRate() int {
	return w.rate
}

// Close closes the file.
func (w *WAV) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.closeErr = w.file.Close()
	})
	return w.closeErr
}
