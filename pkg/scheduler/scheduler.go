// Package scheduler runs the periodic collection tick for one container.
//
// Exactly one timer loop is live at a time. Reconfigure cancels the current
// loop and starts a new one at the new cadence; ticks are serialized so a
// tick still in flight from the old loop never overlaps one from the new.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/probe"
)

const defaultTickTimeout = 30 * time.Second

// Recorder receives the reading produced by every tick, successful or not.
type Recorder interface {
	Record(ctx context.Context, container string, r probe.Reading)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, container string, r probe.Reading)

func (f RecorderFunc) Record(ctx context.Context, container string, r probe.Reading) {
	f(ctx, container, r)
}

type Scheduler struct {
	probe       probe.StatsProbe
	recorder    Recorder
	container   string
	unit        time.Duration
	tickTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex // guards the fields below
	frequency int
	running   bool
	parent    context.Context
	cancel    context.CancelFunc

	current atomic.Int64 // frequency for lock-free readers
	tickMu  sync.Mutex   // one tick at a time
	ticks   atomic.Uint64
	loops   sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeUnit sets the duration of one frequency unit (default time.Second).
func WithTimeUnit(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unit = d
		}
	}
}

// WithTickTimeout bounds a single probe invocation.
func WithTickTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickTimeout = d
		}
	}
}

func New(p probe.StatsProbe, container string, rec Recorder, opts ...Option) *Scheduler {
	s := &Scheduler{
		probe:       p,
		recorder:    rec,
		container:   container,
		unit:        time.Second,
		tickTimeout: defaultTickTimeout,
		logger:      logger.Default(),
		frequency:   DefaultFrequency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(int64(s.frequency))
	return s
}

// Start validates seconds, runs one tick immediately and then one every
// seconds until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, seconds int) error {
	if err := ValidateFrequency(seconds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning() {
		return ErrAlreadyStarted
	}

	s.parent = ctx
	s.setFrequency(seconds)
	s.running = true
	s.launch(true)

	s.logger.Info("collection scheduler started",
		"container", s.container,
		"frequency_seconds", seconds,
	)
	return nil
}

// Reconfigure swaps the collection frequency. When running, the current
// timer is cancelled and replaced before Reconfigure returns; the old loop
// can no longer start a tick. On error the configuration is unchanged.
func (s *Scheduler) Reconfigure(seconds int) error {
	if err := ValidateFrequency(seconds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.frequency
	if !s.isRunning() {
		s.setFrequency(seconds)
		return nil
	}
	if seconds == previous {
		return nil
	}

	s.cancel()
	s.setFrequency(seconds)
	s.launch(false)

	s.logger.Info("collection frequency changed",
		"container", s.container,
		"from_seconds", previous,
		"to_seconds", seconds,
	)
	return nil
}

// Stop cancels the timer and waits for an in-flight tick to finish. No
// tick starts after Stop returns. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.isRunning()
	if wasRunning {
		s.running = false
		s.cancel()
	}
	s.mu.Unlock()

	s.loops.Wait()
	if wasRunning {
		s.logger.Info("collection scheduler stopped", "container", s.container)
	}
}

// Frequency returns the active collection frequency in seconds.
func (s *Scheduler) Frequency() int {
	return int(s.current.Load())
}

// Interval returns the active tick interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.Frequency()) * s.unit
}

// Running reports whether the timer loop is active. Cancelling the
// context passed to Start stops the loop just like Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning()
}

// isRunning must be called with s.mu held.
func (s *Scheduler) isRunning() bool {
	if s.running && s.parent.Err() != nil {
		s.running = false
		s.cancel()
	}
	return s.running
}

// Ticks returns how many ticks have completed.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Container returns the monitored container name.
func (s *Scheduler) Container() string {
	return s.container
}

func (s *Scheduler) setFrequency(seconds int) {
	s.frequency = seconds
	s.current.Store(int64(seconds))
}

// launch must be called with s.mu held.
func (s *Scheduler) launch(immediate bool) {
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	interval := time.Duration(s.frequency) * s.unit

	s.loops.Add(1)
	go s.loop(ctx, interval, immediate)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, immediate bool) {
	defer s.loops.Done()

	if immediate {
		s.tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs under tickMu and re-checks the loop context once it holds the
// lock, so a loop cancelled while waiting never fires.
func (s *Scheduler) tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// An in-flight tick outlives cancellation of its loop.
	s.collect(context.WithoutCancel(ctx))
}

// collect runs one tick. The context carries the container and tick
// number so the probe and recorder log with the same attributes.
func (s *Scheduler) collect(ctx context.Context) probe.Reading {
	ctx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	// ticks only changes under tickMu
	n := s.ticks.Load() + 1
	ctx = logger.SetTick(logger.SetContainer(ctx, s.container), n)

	start := time.Now()
	reading := s.probe.Sample(ctx, s.container)
	if s.recorder != nil {
		s.recorder.Record(ctx, s.container, reading)
	}
	s.ticks.Store(n)

	logger.With(s.logger, ctx).Debug("collection tick",
		"status", reading.Status.String(),
		"duration", time.Since(start),
	)
	return reading
}
