package capture

import (
	"encoding/binary"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_ReadsPipe(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}

	raw := make([]byte, 0, 12)
	for _, s := range []int16{1, -1, 300, -300, 32767, -32768} {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(s))
	}
	path := filepath.Join(t.TempDir(), "pcm.raw")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	p, err := StartProcess(cat, []string{path})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	buf := make([]int16, 4)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, 300, -300}, buf[:n])

	n, err = p.Read(buf)
	require.NoError(t, err, "a short final block is still delivered")
	assert.Equal(t, []int16{32767, -32768}, buf[:n])

	n, err = p.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	_, ok := p.MinBufferSize()
	assert.False(t, ok)
}

func TestProcess_StartFailure(t *testing.T) {
	_, err := StartProcess(filepath.Join(t.TempDir(), "missing-binary"), nil)
	assert.Error(t, err)
}

func TestNewOpener_UnknownBackend(t *testing.T) {
	_, err := NewOpener(Config{Backend: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewOpener_KnownBackends(t *testing.T) {
	for _, backend := range []string{"", "process", "native"} {
		t.Run(backend, func(t *testing.T) {
			open, err := NewOpener(Config{Backend: backend, SampleRate: 44100})
			require.NoError(t, err)
			assert.NotNil(t, open)
		})
	}
}
