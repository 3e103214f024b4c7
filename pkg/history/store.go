// Package history keeps the rolling uptime and latency windows and reads
// the durable metrics and alert logs written alongside the monitor.
package history

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jguan/container-monitor/pkg/infra/cache"
)

const (
	DefaultMaxPoints    = 100
	DefaultHistoryLimit = 50
	DefaultAlertsLimit  = 10

	// TimestampLayout is the wire format of Point timestamps.
	TimestampLayout = "2006-01-02 15:04:05"
)

// Point is one timestamped value of a rolling series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

type pointJSON struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Timestamp: p.Timestamp.Format(TimestampLayout),
		Value:     p.Value,
	})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	p.Value = raw.Value
	return nil
}

// Record is one row of the durable metrics log, keyed by header column.
type Record map[string]string

// Options configures a Store.
type Options struct {
	MaxPoints    int
	MetricsFile  string
	AlertsFile   string
	HistoryLimit int
	AlertsLimit  int
	// TailTTL caches file reads for this long; zero disables the cache.
	TailTTL time.Duration
}

// Store owns the uptime and latency windows. Appends and reads take a
// short lock around the buffers only, so readers never wait on a tick.
type Store struct {
	mu      sync.RWMutex
	uptime  *Ring[Point]
	latency *Ring[Point]

	metricsFile  string
	alertsFile   string
	historyLimit int
	alertsLimit  int

	// nil when TailTTL is zero
	historyTail *cache.Cache[[]Record]
	alertsTail  *cache.Cache[[]string]
}

func NewStore(opts Options) *Store {
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.AlertsLimit <= 0 {
		opts.AlertsLimit = DefaultAlertsLimit
	}
	s := &Store{
		uptime:       NewRing[Point](opts.MaxPoints),
		latency:      NewRing[Point](opts.MaxPoints),
		metricsFile:  opts.MetricsFile,
		alertsFile:   opts.AlertsFile,
		historyLimit: opts.HistoryLimit,
		alertsLimit:  opts.AlertsLimit,
	}
	if opts.TailTTL > 0 {
		s.historyTail = cache.New[[]Record](cache.WithTTL(opts.TailTTL))
		s.alertsTail = cache.New[[]string](cache.WithTTL(opts.TailTTL))
	}
	return s
}

func (s *Store) AppendUptime(p Point) {
	s.mu.Lock()
	s.uptime.Push(p)
	s.mu.Unlock()
}

func (s *Store) AppendLatency(p Point) {
	s.mu.Lock()
	s.latency.Push(p)
	s.mu.Unlock()
}

// AppendTick appends one point to each series in a single step.
func (s *Store) AppendTick(uptime, latency Point) {
	s.mu.Lock()
	s.uptime.Push(uptime)
	s.latency.Push(latency)
	s.mu.Unlock()
}

// RecentUptime returns the uptime window, oldest first.
func (s *Store) RecentUptime() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uptime.Snapshot()
}

// RecentLatency returns the latency window, oldest first.
func (s *Store) RecentLatency() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latency.Snapshot()
}

// RecentHistory returns the last rows of the metrics log, oldest first.
// A missing or unreadable file yields an empty slice. The result may be
// shared with other callers and must not be modified.
func (s *Store) RecentHistory() []Record {
	load := func() []Record { return TailCSV(s.metricsFile, s.historyLimit) }
	if s.historyTail == nil {
		return load()
	}
	return s.historyTail.GetOrLoad(s.metricsFile, load)
}

// RecentAlerts returns the last lines of the alerts log, oldest first.
// A missing or unreadable file yields an empty slice. The result may be
// shared with other callers and must not be modified.
func (s *Store) RecentAlerts() []string {
	load := func() []string { return TailLines(s.alertsFile, s.alertsLimit) }
	if s.alertsTail == nil {
		return load()
	}
	return s.alertsTail.GetOrLoad(s.alertsFile, load)
}

// InvalidateHistory drops the cached metrics log tail after a write.
func (s *Store) InvalidateHistory() {
	if s.historyTail != nil {
		s.historyTail.Delete(s.metricsFile)
	}
}

// InvalidateAlerts drops the cached alerts log tail after a write.
func (s *Store) InvalidateAlerts() {
	if s.alertsTail != nil {
		s.alertsTail.Delete(s.alertsFile)
	}
}

// MaxPoints returns the per-series capacity.
func (s *Store) MaxPoints() int {
	return s.uptime.Cap()
}

// Seed fills both series with count synthetic points spaced step apart, the
// newest one step before end: uptime 100 and the given latency.
func (s *Store) Seed(end time.Time, count int, step time.Duration, latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := count; i > 0; i-- {
		ts := end.Add(-time.Duration(i) * step)
		s.uptime.Push(Point{Timestamp: ts, Value: 100})
		s.latency.Push(Point{Timestamp: ts, Value: latencyMs})
	}
}
