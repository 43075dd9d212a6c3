package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/noisesense/internal/gate"
	"github.com/oszuidwest/noisesense/internal/location"
	"github.com/oszuidwest/noisesense/internal/meter"
	"github.com/oszuidwest/noisesense/internal/types"
)

// subscriberBuffer is the number of results a slow client may fall behind by
// before results are dropped for it.
const subscriberBuffer = 16

// ResultView is a classified reading as rendered by the web interface.
type ResultView struct {
	SessionID      string              `json:"session_id"`
	Seq            uint64              `json:"seq"`
	At             time.Time           `json:"at"`
	DB             float64             `json:"db"`
	DBFS           float64             `json:"dbfs"`
	PeakDB         float64             `json:"peak_db"`
	Motion         float64             `json:"motion"`
	MotionAgeMs    int64               `json:"motion_age_ms"`
	Classification gate.Classification `json:"classification"`
	Label          string              `json:"label"`
	Color          string              `json:"color"`
	Location       *location.Fix       `json:"location,omitempty"`
	LocationText   string              `json:"location_text"`
}

// NewResultView converts a meter result for display.
func NewResultView(r meter.Result) ResultView {
	return ResultView{
		SessionID:      r.SessionID,
		Seq:            r.Reading.Seq,
		At:             r.Reading.At,
		DB:             r.Reading.DB,
		DBFS:           r.Reading.DBFS,
		PeakDB:         r.PeakDB,
		Motion:         r.Motion,
		MotionAgeMs:    r.MotionAge.Milliseconds(),
		Classification: r.Classification,
		Label:          r.Classification.Label(),
		Color:          r.Classification.Color(),
		Location:       r.Location,
		LocationText:   r.Location.String(),
	}
}

// Hub broadcasts results to connected WebSocket clients. It implements
// meter.Presenter and never blocks the dispatcher: a client whose buffer is
// full misses that result.
type Hub struct {
	mu   sync.Mutex
	subs map[chan types.WSResultResponse]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan types.WSResultResponse]struct{})}
}

// Subscribe registers a client and returns its result channel.
func (h *Hub) Subscribe() chan types.WSResultResponse {
	ch := make(chan types.WSResultResponse, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(ch chan types.WSResultResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Present delivers r to every subscriber.
func (h *Hub) Present(r meter.Result) {
	msg := types.WSResultResponse{Type: "result", Result: NewResultView(r)}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			slog.Debug("dropped result for slow client", "seq", r.Reading.Seq)
		}
	}
}
