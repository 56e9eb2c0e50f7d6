package send

import (
	"sync/atomic"
	"time"

	"github.com/afshinator/BatchSMS/internal/model"
)

// RunMetrics accumulates process-lifetime counters for runs and per-item
// outcomes.
type RunMetrics struct {
	runsStarted      int64
	runsSettled      int64
	itemsSent        int64
	itemsCancelled   int64
	itemsErrored     int64
	composeNs        int64
	lastRunDurationN int64
}

func NewRunMetrics() *RunMetrics {
	return &RunMetrics{}
}

func (m *RunMetrics) RecordRunStarted() {
	atomic.AddInt64(&m.runsStarted, 1)
}

func (m *RunMetrics) RecordRunSettled(duration time.Duration) {
	atomic.AddInt64(&m.runsSettled, 1)
	atomic.StoreInt64(&m.lastRunDurationN, int64(duration))
}

func (m *RunMetrics) RecordItem(status model.RecipientStatus, composeDuration time.Duration) {
	atomic.AddInt64(&m.composeNs, int64(composeDuration))
	switch status {
	case model.RecipientStatusSent:
		atomic.AddInt64(&m.itemsSent, 1)
	case model.RecipientStatusCancelled:
		atomic.AddInt64(&m.itemsCancelled, 1)
	case model.RecipientStatusError:
		atomic.AddInt64(&m.itemsErrored, 1)
	}
}

func (m *RunMetrics) GetStats() map[string]interface{} {
	sent := atomic.LoadInt64(&m.itemsSent)
	cancelled := atomic.LoadInt64(&m.itemsCancelled)
	errored := atomic.LoadInt64(&m.itemsErrored)
	composeNs := atomic.LoadInt64(&m.composeNs)

	total := sent + cancelled + errored
	avgCompose := time.Duration(0)
	if total > 0 {
		avgCompose = time.Duration(composeNs / total)
	}

	return map[string]interface{}{
		"runs_started":        atomic.LoadInt64(&m.runsStarted),
		"runs_settled":        atomic.LoadInt64(&m.runsSettled),
		"items_sent":          sent,
		"items_cancelled":     cancelled,
		"items_errored":       errored,
		"avg_compose_ms":      avgCompose.Milliseconds(),
		"last_run_duration_s": time.Duration(atomic.LoadInt64(&m.lastRunDurationN)).Seconds(),
	}
}
