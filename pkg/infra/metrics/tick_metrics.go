package metrics

import (
	"sync/atomic"
	"time"
)

// TickMetrics tracks collection tick counts and durations.
// It uses lock-free atomic counters for thread safety.
type TickMetrics struct {
	totalTicks    atomic.Int64
	failedTicks   atomic.Int64
	totalDuration atomic.Int64 // microseconds
	lastTick      atomic.Int64 // unix nanoseconds, 0 before the first tick
}

func NewTickMetrics() *TickMetrics {
	return &TickMetrics{}
}

// Record records a completed tick that finished at at.
func (m *TickMetrics) Record(duration time.Duration, failed bool, at time.Time) {
	m.totalTicks.Add(1)
	m.totalDuration.Add(duration.Microseconds())
	if failed {
		m.failedTicks.Add(1)
	}
	m.lastTick.Store(at.UnixNano())
}

// Snapshot returns a point-in-time snapshot of the counters.
func (m *TickMetrics) Snapshot() TickSnapshot {
	total := m.totalTicks.Load()
	failed := m.failedTicks.Load()
	durationUs := m.totalDuration.Load()

	var avgTickMs float64
	if total > 0 {
		avgTickMs = float64(durationUs) / float64(total) / 1000
	}

	var last time.Time
	if ns := m.lastTick.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}

	return TickSnapshot{
		TotalTicks:  total,
		FailedTicks: failed,
		AvgTickMs:   avgTickMs,
		LastTick:    last,
	}
}

// TickSnapshot is an immutable snapshot of tick metrics at a point in time.
type TickSnapshot struct {
	TotalTicks  int64
	FailedTicks int64
	AvgTickMs   float64
	LastTick    time.Time
}
