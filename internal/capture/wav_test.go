package capture

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, sampleRate, bitDepth, chans int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, bitDepth, chans, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: chans},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestWAV_ReadsBlocksUntilEOF(t *testing.T) {
	data := make([]int, 10)
	for i := range data {
		data[i] = (i + 1) * 100
	}
	path := writeWAV(t, 8000, 16, 1, data)

	dev, err := OpenWAV(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, dev.Close()) }()

	assert.Equal(t, 8000, dev.SampleRate())
	_, ok := dev.MinBufferSize()
	assert.False(t, ok)

	buf := make([]int16, 4)
	var got []int16
	for {
		n, err := dev.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}

	require.Len(t, got, 10)
	assert.Equal(t, int16(100), got[0])
	assert.Equal(t, int16(1000), got[9])
}

func TestWAV_MixesStereoToMono(t *testing.T) {
	path := writeWAV(t, 8000, 16, 2, []int{1000, 3000, -200, -400})

	dev, err := OpenWAV(path)
	require.NoError(t, err)
	defer func() { _ = dev.Close() }()

	buf := make([]int16, 8)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int16{2000, -300}, buf[:n])
}

func TestWAV_RejectsOtherBitDepths(t *testing.T) {
	path := writeWAV(t, 8000, 8, 1, []int{1, 2, 3, 4})

	_, err := OpenWAV(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWAV_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o600))

	_, err := OpenWAV(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWAV_CloseIsIdempotent(t *testing.T) {
	path := writeWAV(t, 8000, 16, 1, []int{1, 2})
	dev, err := OpenWAV(path)
	require.NoError(t, err)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	_, err = dev.Read(make([]int16, 2))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileOpener(t *testing.T) {
	path := writeWAV(t, 16000, 16, 1, []int{5, 6, 7})
	dev, err := FileOpener(path)()
	require.NoError(t, err)
	defer func() { _ = dev.Close() }()

	sr, ok := dev.(SampleRater)
	require.True(t, ok)
	assert.Equal(t, 16000, sr.SampleRate())
}
