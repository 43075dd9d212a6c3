package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/types"
	"github.com/oszuidwest/noisesense/internal/util"
)

// Process is a capture subprocess writing raw S16LE to stdout.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *syncBuffer
	raw    []byte

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// StartProcess launches a capture subprocess.
func StartProcess(name string, args []string) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	slog.Info("starting audio capture", "command", name, "args", args)

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdoutPipe,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	return p, nil
}

// Read fills buf with samples from the subprocess.
func (p *Process) Read(buf []int16) (int, error) {
	size := len(buf) * audio.BytesPerSample
	if cap(p.raw) < size {
		p.raw = make([]byte, size)
	}
	raw := p.raw[:size]

	n, err := io.ReadFull(p.stdout, raw)
	samples := audio.DecodeS16LE(buf, raw[:n])
	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return samples, nil
	case errors.Is(err, io.EOF):
		if msg := util.LastStderrLine(p.stderr.String()); msg != "" {
			return samples, fmt.Errorf("capture process ended: %s", msg)
		}
		return samples, io.EOF
	case errors.Is(err, os.ErrClosed):
		return samples, ErrClosed
	default:
		return samples, err
	}
}

// MinBufferSize reports that a pipe has no preferred block size.
func (p *Process) MinBufferSize() (int, bool) {
	return 0, false
}

// Close stops the subprocess, escalating to a kill after ShutdownTimeout.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		go func() {
			// Wait closes stdout once the process exits.
			if err := p.cmd.Wait(); err != nil {
				slog.Debug("capture process exited", "error", err)
			}
			close(p.done)
		}()

		if p.cmd.Process != nil {
			if err := util.GracefulSignal(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.Warn("failed to signal capture process", "error", err)
			}
		}

		select {
		case <-p.done:
		case <-time.After(types.ShutdownTimeout):
			slog.Warn("capture process did not exit, killing")
			p.cancel()
			<-p.done
			p.closeErr = fmt.Errorf("capture process killed after %s", types.ShutdownTimeout)
		}
		p.cancel()
	})
	return p.closeErr
}

// syncBuffer is a bytes.Buffer safe for the exec stderr copier and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
