package meter

import (
	"context"
	"time"

	"github.com/oszuidwest/noisesense/internal/gate"
)

// Run drains the reading queue in order until ctx is done. It is the only
// place readings are classified; presenters are called from this goroutine.
// Run is called once per Meter.
func (m *Meter) Run(ctx context.Context) {
	defer m.runOnce.Do(func() { close(m.runDone) })
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-m.queue:
			if q.reading == nil {
				q.session.markDrained()
				continue
			}
			m.dispatch(q)
		}
	}
}

func (m *Meter) dispatch(q queued) {
	now := time.Now()
	if q.reading.Seq == 1 {
		m.peak.Reset()
	}
	mag := m.motion.Load()
	age, _ := m.motion.Age(now)

	res := Result{
		Reading:        *q.reading,
		PeakDB:         m.peak.Update(q.reading.DB, now),
		Motion:         mag,
		MotionAge:      age,
		Classification: gate.Classify(q.reading.DB, mag, q.session.settings.Thresholds),
		Location:       m.location.Load(),
		SessionID:      q.session.id,
	}

	m.last.Store(&res)
	m.presenter.Present(res)
}
