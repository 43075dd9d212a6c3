package meter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/noisesense/internal/audio"
	"github.com/oszuidwest/noisesense/internal/gate"
	"github.com/oszuidwest/noisesense/internal/location"
)

// Result is one classified reading as delivered to presenters.
type Result struct {
	Reading        audio.Reading       `json:"reading"`
	PeakDB         float64             `json:"peak_db"`
	Motion         float64             `json:"motion"`
	MotionAge      time.Duration       `json:"motion_age"` // zero when no motion was ever reported
	Classification gate.Classification `json:"classification"`
	Location       *location.Fix       `json:"location,omitempty"`
	SessionID      string              `json:"session_id"`
}

// Presenter receives results on the dispatcher goroutine, in reading order.
// Implementations must not block for long.
type Presenter interface {
	Present(Result)
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(Result)

// Present calls f(r).
func (f PresenterFunc) Present(r Result) { f(r) }

// Multi fans a result out to several presenters in order.
type Multi []Presenter

// Present delivers r to every presenter.
func (ps Multi) Present(r Result) {
	for _, p := range ps {
		p.Present(r)
	}
}

// LogPresenter writes results to the structured log: every reading at debug
// level, and classification changes at info level.
type LogPresenter struct {
	mu   sync.Mutex
	prev gate.Classification
}

// Present logs r.
func (l *LogPresenter) Present(r Result) {
	slog.Debug("reading",
		"session_id", r.SessionID,
		"seq", r.Reading.Seq,
		"db", r.Reading.DB,
		"motion", r.Motion,
		"classification", r.Classification)

	l.mu.Lock()
	changed := r.Classification != l.prev
	l.prev = r.Classification
	l.mu.Unlock()

	if changed {
		slog.Info("classification changed",
			"classification", r.Classification,
			"db", r.Reading.DB,
			"motion", r.Motion)
	}
}
