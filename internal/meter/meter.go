// Package meter runs recording sessions: a blocking read loop turns capture
// blocks into readings, and a single dispatcher classifies them against the
// latest motion and hands the results to presenters in order.
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/capture"
	"github.com/oszuidwest/noisesense/internal/gate"
	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/motion"
	"github.com/oszuidwest/noisesense/internal/types"
)

// queueSize is the FIFO capacity between the read loop and the dispatcher.
const queueSize = 64

// Sentinel errors for meter operations.
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrAlreadyRunning    = errors.New("meter already running")
	ErrNotRunning        = errors.New("meter not running")
	ErrSessionActive     = errors.New("meter settings cannot change while a session is running")
	ErrInvalidSettings   = errors.New("invalid meter settings")
)

// Settings are fixed for the lifetime of a session.
type Settings struct {
	SampleRate          int
	BlockSize           int // samples; 0 uses the device minimum or the fallback
	CalibrationOffsetDB float64
	Thresholds          gate.Thresholds
}

// Validate checks that the settings can drive a session.
func (s Settings) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidSettings, s.SampleRate)
	}
	if s.BlockSize < 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidSettings, s.BlockSize)
	}
	if s.Thresholds.MotionIgnore < 0 {
		return fmt.Errorf("%w: motion ignore threshold %v", ErrInvalidSettings, s.Thresholds.MotionIgnore)
	}
	return nil
}

// Options wires a Meter to its collaborators.
type Options struct {
	Opener    capture.Opener
	Settings  Settings
	Motion    *motion.Cell
	Location  *location.Cell
	Presenter Presenter
}

// Meter owns at most one recording session at a time.
type Meter struct {
	opener    capture.Opener
	motion    *motion.Cell
	location  *location.Cell
	presenter Presenter
	queue     chan queued
	runDone   chan struct{} // closed when Run returns
	runOnce   sync.Once
	last      atomic.Pointer[Result]
	peak      *audio.PeakHolder // dispatcher only

	lifecycle sync.Mutex // serializes Start and Stop
	mu        sync.RWMutex
	settings  Settings
	state     types.MeterState
	session   *session
	latest    *session // most recent session, kept after it ends
	lastError string
	startTime time.Time
}

// session is one start-to-stop run of the read loop.
type session struct {
	id        string
	device    capture.Device
	settings  Settings
	blockSize int

	running  atomic.Bool
	readings atomic.Uint64
	done     chan struct{}
	drained  chan struct{}

	releaseOnce sync.Once
	drainOnce   sync.Once
}

// queued is one FIFO entry. A nil reading marks the end of a session.
type queued struct {
	session *session
	reading *audio.Reading
}

// New creates a Meter. Run must be running while sessions are active: the
// read loop waits for queue space rather than dropping readings.
func New(opts Options) *Meter {
	if opts.Motion == nil {
		opts.Motion = &motion.Cell{}
	}
	if opts.Location == nil {
		opts.Location = &location.Cell{}
	}
	if opts.Presenter == nil {
		opts.Presenter = Multi{}
	}
	return &Meter{
		opener:    opts.Opener,
		motion:    opts.Motion,
		location:  opts.Location,
		presenter: opts.Presenter,
		queue:     make(chan queued, queueSize),
		runDone:   make(chan struct{}),
		peak:      audio.NewPeakHolder(audio.SilenceDB, audio.DefaultPeakHoldDuration),
		settings:  opts.Settings,
		state:     types.StateStopped,
	}
}

// Motion returns the motion cell sensor feeds write to.
func (m *Meter) Motion() *motion.Cell {
	return m.motion
}

// Location returns the location cell sensor feeds write to.
func (m *Meter) Location() *location.Cell {
	return m.location
}

// State returns the current session state.
func (m *Meter) State() types.MeterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRunning reports whether a session is producing readings.
func (m *Meter) IsRunning() bool {
	return m.State() == types.StateRunning
}

// Settings returns the settings the next session will use.
func (m *Meter) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings replaces the settings. It fails with ErrSessionActive while
// a session is in progress.
func (m *Meter) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.StateStopped {
		return ErrSessionActive
	}
	m.settings = s
	return nil
}

// LastResult returns the most recent classified reading.
func (m *Meter) LastResult() (Result, bool) {
	r := m.last.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// Status returns a summary of the current session.
func (m *Meter) Status() types.MeterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := types.MeterStatus{
		State:     m.state,
		LastError: m.lastError,
	}
	if s := m.session; s != nil {
		status.SessionID = s.id
		status.Readings = s.readings.Load()
		status.BlockSize = s.blockSize
	}
	if m.state == types.StateRunning {
		status.Uptime = time.Since(m.startTime).Truncate(time.Second).String()
	}
	return status
}

// Start acquires a fresh device and begins a session. It returns the session
// ID. When the device cannot be acquired the meter stays stopped and the
// returned error wraps ErrDeviceUnavailable.
func (m *Meter) Start() (string, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.state != types.StateStopped {
		m.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	if m.opener == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: no capture source configured", ErrDeviceUnavailable)
	}
	m.state = types.StateStarting
	settings := m.settings
	m.mu.Unlock()

	device, err := m.opener()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		m.mu.Lock()
		m.state = types.StateStopped
		m.lastError = err.Error()
		m.mu.Unlock()
		slog.Error("failed to open capture device", "error", err)
		return "", err
	}

	if sr, ok := device.(capture.SampleRater); ok && sr.SampleRate() > 0 {
		settings.SampleRate = sr.SampleRate()
	}

	s := &session{
		id:        uuid.NewString(),
		device:    device,
		settings:  settings,
		blockSize: BlockSize(settings, device),
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
	s.running.Store(true)

	m.mu.Lock()
	m.session = s
	m.latest = s
	m.state = types.StateRunning
	m.startTime = time.Now()
	m.lastError = ""
	m.mu.Unlock()

	slog.Info("meter session started", "session_id", s.id, "block_size", s.blockSize, "sample_rate", settings.SampleRate)

	go m.readLoop(s)
	return s.id, nil
}

// Stop cancels the running session and waits for the device to be released.
// Stopping a stopped meter is a no-op.
func (m *Meter) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	s := m.session
	if s == nil || m.state != types.StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = types.StateStopping
	m.mu.Unlock()

	s.running.Store(false)

	var errs []error
	select {
	case <-s.done:
		slog.Info("meter session stopped", "session_id", s.id, "readings", s.readings.Load())
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("read loop did not stop in time, closing device", "session_id", s.id)
		if err := s.release(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		<-s.done
		errs = append(errs, errors.New("read loop shutdown timeout"))
	}

	m.mu.Lock()
	if m.session == s {
		m.session = nil
		m.state = types.StateStopped
	}
	m.mu.Unlock()

	return errors.Join(errs...)
}

// Toggle starts a stopped meter or stops a running one and reports whether
// a session is running afterwards.
func (m *Meter) Toggle() (bool, error) {
	if m.IsRunning() {
		return false, m.Stop()
	}
	_, err := m.Start()
	return err == nil, err
}

// Wait blocks until the current session has ended and every reading it
// produced has been presented, or ctx is done. It also returns once Run has
// exited, since nothing is presented after that.
func (m *Meter) Wait(ctx context.Context) error {
	m.mu.RLock()
	s := m.latest
	m.mu.RUnlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.drained:
		return nil
	case <-m.runDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockSize resolves the number of samples per block for a session: the
// configured size, else the device minimum, else the fallback.
func BlockSize(s Settings, device capture.Device) int {
	if s.BlockSize > 0 {
		return s.BlockSize
	}
	if n, ok := device.MinBufferSize(); ok && n > 0 {
		return n
	}
	return audio.FallbackBlockSamples(s.SampleRate)
}

// readLoop owns the device for the lifetime of a session.
func (m *Meter) readLoop(s *session) {
	var loopErr error
	defer func() { m.finish(s, loopErr) }()

	buf := make([]int16, s.blockSize)
	for s.running.Load() {
		n, err := s.device.Read(buf)
		if !s.running.Load() {
			return
		}

		if n > 0 {
			db, dbfs, ok := audio.Estimate(buf[:n], s.settings.CalibrationOffsetDB)
			if ok {
				r := &audio.Reading{
					DB:      db,
					DBFS:    dbfs,
					Samples: n,
					Seq:     s.readings.Add(1),
					At:      time.Now(),
				}
				// A reading that survived the cancel check is always
				// delivered, even if Stop arrives while the queue is full.
				select {
				case m.queue <- queued{session: s, reading: r}:
				case <-m.runDone:
					return
				}
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				loopErr = err
			}
			return
		}
	}
}

// finish releases the device, marks the end of the session on the queue,
// and returns the meter to stopped unless Stop is doing so. The marker
// queues behind every reading already produced, so the session only counts
// as drained once those have been presented. If the dispatcher has exited
// nothing will present them and the session is marked drained directly.
func (m *Meter) finish(s *session, loopErr error) {
	if err := s.release(); err != nil {
		slog.Warn("failed to close capture device", "session_id", s.id, "error", err)
	}

	m.mu.Lock()
	if loopErr != nil {
		m.lastError = loopErr.Error()
		slog.Error("capture read failed", "session_id", s.id, "error", loopErr)
	}
	if m.session == s && m.state == types.StateRunning {
		m.session = nil
		m.state = types.StateStopped
		slog.Info("meter session ended", "session_id", s.id, "readings", s.readings.Load())
	}
	m.mu.Unlock()

	close(s.done)

	select {
	case m.queue <- queued{session: s}:
	case <-m.runDone:
		s.markDrained()
	}
}

// release closes the device exactly once.
func (s *session) release() error {
	var err error
	s.releaseOnce.Do(func() {
		err = s.device.Close()
	})
	return err
}

func (s *session) markDrained() {
	s.drainOnce.Do(func() { close(s.drained) })
}

// SettingsFrom builds session settings from the persisted meter settings.
func SettingsFrom(ms types.MeterSettings, blockSize int) Settings {
	return Settings{
		SampleRate:          ms.SampleRate,
		BlockSize:           blockSize,
		CalibrationOffsetDB: ms.CalibrationOffsetDB,
		Thresholds: gate.Thresholds{
			NuisanceDB:   ms.NuisanceThresholdDB,
			MotionIgnore: ms.MotionIgnoreThreshold,
		},
	}
}
