// Package monitor wires the probe, scheduler, history store and alerting
// into the agent served by the HTTP API.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jguan/container-monitor/pkg/alert"
	"github.com/jguan/container-monitor/pkg/history"
	"github.com/jguan/container-monitor/pkg/infra/eventbus"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/infra/metrics"
	"github.com/jguan/container-monitor/pkg/probe"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

const (
	seedPoints  = 10
	seedStep    = time.Minute
	seedLatency = 20.0

	// eventBuffer holds a few ticks worth of reading and alert events.
	eventBuffer = 64
)

type Options struct {
	Container string
	// Frequency is the collection frequency in seconds used by Start.
	Frequency int
	Probe     probe.StatsProbe
	Store     *history.Store

	Thresholds    alert.Thresholds
	AlertsEnabled bool
	// AlertLog receives alert lines when set.
	AlertLog *alert.LogWriter
	// Recorder appends every reading to the metrics log when set.
	Recorder *history.CSVRecorder
	// Exporter publishes readings as Prometheus metrics when set.
	Exporter *metrics.Exporter

	SeedHistory      bool
	Logger           *slog.Logger
	SchedulerOptions []scheduler.Option
}

// Monitor is the single in-process owner of the collection state. It is
// the scheduler's Recorder: every tick appends to the history windows and
// evaluates alerts synchronously, then fans readings and alerts out to the
// optional consumers on the event bus.
type Monitor struct {
	container     string
	frequency     int
	store         *history.Store
	sched         *scheduler.Scheduler
	bus           eventbus.EventBus
	ticks         *metrics.TickMetrics
	thresholds    alert.Thresholds
	alertsEnabled bool
	alertLog      *alert.LogWriter
	recorder      *history.CSVRecorder
	exporter      *metrics.Exporter
	seed          bool
	// base carries no container attribute; tick contexts add it.
	base   *slog.Logger
	logger *slog.Logger

	latest    atomic.Pointer[probe.Reading]
	lastAlert atomic.Pointer[alert.Record]
}

func New(opts Options) (*Monitor, error) {
	if opts.Probe == nil {
		return nil, fmt.Errorf("monitor: probe is required")
	}
	if opts.Container == "" {
		return nil, fmt.Errorf("monitor: container name is required")
	}
	if opts.Store == nil {
		opts.Store = history.NewStore(history.Options{})
	}
	if opts.Frequency == 0 {
		opts.Frequency = scheduler.DefaultFrequency
	}
	if err := scheduler.ValidateFrequency(opts.Frequency); err != nil {
		return nil, err
	}
	base := opts.Logger
	if base == nil {
		base = logger.Default()
	}
	log := base.With("container", opts.Container)

	m := &Monitor{
		container:     opts.Container,
		frequency:     opts.Frequency,
		store:         opts.Store,
		ticks:         metrics.NewTickMetrics(),
		thresholds:    opts.Thresholds,
		alertsEnabled: opts.AlertsEnabled,
		alertLog:      opts.AlertLog,
		recorder:      opts.Recorder,
		exporter:      opts.Exporter,
		seed:          opts.SeedHistory,
		base:          base,
		logger:        log,
	}

	// One worker keeps the metrics log and alert log in tick order.
	m.bus = eventbus.NewInMemoryEventBus(
		eventbus.WithWorkerCount(1),
		eventbus.WithBufferSize(eventBuffer),
		eventbus.WithLogger(log),
	)
	if err := m.subscribe(); err != nil {
		_ = m.bus.Close()
		return nil, err
	}

	schedOpts := append([]scheduler.Option{scheduler.WithLogger(base)}, opts.SchedulerOptions...)
	m.sched = scheduler.New(opts.Probe, opts.Container, m, schedOpts...)

	return m, nil
}

func (m *Monitor) subscribe() error {
	own := eventbus.FilterBySource(m.container)

	if m.exporter != nil {
		if _, err := m.bus.Subscribe(m.export, own,
			eventbus.FilterByTypes(eventbus.TypeReading, eventbus.TypeAlert)); err != nil {
			return fmt.Errorf("subscribe exporter: %w", err)
		}
	}
	if m.recorder != nil {
		if _, err := m.bus.Subscribe(m.recordReading, own, eventbus.FilterByType(eventbus.TypeReading)); err != nil {
			return fmt.Errorf("subscribe recorder: %w", err)
		}
	}
	if m.alertsEnabled && m.alertLog != nil {
		if _, err := m.bus.Subscribe(m.writeAlert, own, eventbus.FilterByType(eventbus.TypeAlert)); err != nil {
			return fmt.Errorf("subscribe alert log: %w", err)
		}
	}
	return nil
}

// Start seeds the history when configured and starts collecting at the
// configured frequency. The first tick runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	if m.seed {
		m.store.Seed(time.Now(), seedPoints, seedStep, seedLatency)
		m.logger.Info("history seeded", "points", seedPoints)
	}
	return m.sched.Start(ctx, m.frequency)
}

// Stop halts collection, waits for the in-flight tick and drains the
// event bus.
func (m *Monitor) Stop() {
	m.sched.Stop()
	_ = m.bus.Close()
}

// Record implements scheduler.Recorder.
func (m *Monitor) Record(ctx context.Context, container string, r probe.Reading) {
	now := time.Now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if logger.GetContainer(ctx) == "" {
		ctx = logger.SetContainer(ctx, container)
	}
	log := logger.With(m.base, ctx)

	uptime := 0.0
	if r.Running() {
		uptime = 100
	}
	m.store.AppendTick(
		history.Point{Timestamp: r.Timestamp, Value: uptime},
		history.Point{Timestamp: r.Timestamp, Value: r.ResponseTimeMs},
	)
	m.latest.Store(&r)
	m.ticks.Record(now.Sub(r.Timestamp), !r.Running(), now)

	m.publish(log, eventbus.NewEvent(eventbus.TypeReading, container, r))

	if !m.alertsEnabled {
		return
	}
	rec, raised := alert.Evaluate(container, r, m.thresholds)
	if !raised {
		return
	}
	m.lastAlert.Store(&rec)
	log.Warn("alert raised",
		"severity", rec.Severity,
		"metric", rec.Metric,
		"value", rec.Value,
		"threshold", rec.Threshold,
	)
	m.publish(log, eventbus.NewEvent(eventbus.TypeAlert, container, rec))
}

func (m *Monitor) publish(log *slog.Logger, e eventbus.Event) {
	if err := m.bus.Publish(e); err != nil {
		log.Debug("event not published", "event_type", e.Type, "error", err)
	}
}

func (m *Monitor) export(e eventbus.Event) error {
	switch p := e.Payload.(type) {
	case probe.Reading:
		m.exporter.ObserveReading(e.Source, p)
	case alert.Record:
		m.exporter.ObserveAlert(e.Source, string(p.Severity))
	default:
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	return nil
}

func (m *Monitor) recordReading(e eventbus.Event) error {
	r, ok := e.Payload.(probe.Reading)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	if err := m.recorder.Write(e.Source, r); err != nil {
		return err
	}
	m.store.InvalidateHistory()
	return nil
}

func (m *Monitor) writeAlert(e eventbus.Event) error {
	rec, ok := e.Payload.(alert.Record)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	if err := m.alertLog.Write(rec); err != nil {
		return err
	}
	m.store.InvalidateAlerts()
	return nil
}

// Current returns the reading of the most recent tick, or the error
// sentinel before the first tick completes.
func (m *Monitor) Current() probe.Reading {
	if r := m.latest.Load(); r != nil {
		return *r
	}
	return probe.ErrorReading(time.Time{}, nil)
}

func (m *Monitor) Uptime() []history.Point  { return m.store.RecentUptime() }
func (m *Monitor) Latency() []history.Point { return m.store.RecentLatency() }
func (m *Monitor) History() []history.Record {
	return m.store.RecentHistory()
}
func (m *Monitor) Alerts() []string { return m.store.RecentAlerts() }

// LastAlert returns the most recent alert raised by the evaluator.
func (m *Monitor) LastAlert() (alert.Record, bool) {
	if rec := m.lastAlert.Load(); rec != nil {
		return *rec, true
	}
	return alert.Record{}, false
}

func (m *Monitor) Container() string { return m.container }

func (m *Monitor) Frequency() int { return m.sched.Frequency() }

// SetFrequency validates and applies a new collection frequency. An
// invalid value leaves the cadence unchanged.
func (m *Monitor) SetFrequency(seconds int) error {
	if err := m.sched.Reconfigure(seconds); err != nil {
		return err
	}
	m.logger.Info("collection frequency updated", "frequency_seconds", seconds)
	return nil
}

// Status summarizes the agent for GET /api/agent.
type Status struct {
	Container           string     `json:"container" yaml:"container"`
	CollectionFrequency int        `json:"collection_frequency" yaml:"collection_frequency"`
	Running             bool       `json:"running" yaml:"running"`
	TicksTotal          int64      `json:"ticks_total" yaml:"ticks_total"`
	TicksFailed         int64      `json:"ticks_failed" yaml:"ticks_failed"`
	AvgTickMs           float64    `json:"avg_tick_ms" yaml:"avg_tick_ms"`
	LastTick            *time.Time `json:"last_tick" yaml:"last_tick"`
	LastStatus          string     `json:"last_status" yaml:"last_status"`
}

func (m *Monitor) Status() Status {
	snap := m.ticks.Snapshot()
	st := Status{
		Container:           m.container,
		CollectionFrequency: m.sched.Frequency(),
		Running:             m.sched.Running(),
		TicksTotal:          snap.TotalTicks,
		TicksFailed:         snap.FailedTicks,
		AvgTickMs:           snap.AvgTickMs,
		LastStatus:          m.Current().Status.String(),
	}
	if !snap.LastTick.IsZero() {
		last := snap.LastTick
		st.LastTick = &last
	}
	return st
}
