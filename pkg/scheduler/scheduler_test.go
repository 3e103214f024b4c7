package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/probe"
)

// testUnit makes one "second" of frequency last 5ms.
const testUnit = 5 * time.Millisecond

type fakeProbe struct {
	delay    time.Duration
	block    chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (p *fakeProbe) Sample(ctx context.Context, container string) probe.Reading {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if p.block != nil {
		<-p.block
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return probe.Reading{Status: probe.StatusRunning, Timestamp: time.Now()}
}

type tickLog struct {
	mu    sync.Mutex
	times []time.Time
}

func (l *tickLog) Record(ctx context.Context, container string, r probe.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = append(l.times, time.Now())
}

func (l *tickLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.times)
}

func newTestScheduler(p probe.StatsProbe, rec Recorder) *Scheduler {
	return New(p, "web", rec, WithTimeUnit(testUnit))
}

func TestValidateFrequency(t *testing.T) {
	for _, ok := range []int{5, 30, 60, 300} {
		assert.NoError(t, ValidateFrequency(ok), ok)
	}
	for _, bad := range []int{-1, 0, 4, 301, 1000} {
		err := ValidateFrequency(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, ErrInvalidFrequency)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Frequency must be between 5 and 300 seconds", verr.Message)
		assert.Equal(t, bad, verr.Value)
	}
}

func TestClampFrequency(t *testing.T) {
	assert.Equal(t, 5, ClampFrequency(1))
	assert.Equal(t, 30, ClampFrequency(30))
	assert.Equal(t, 300, ClampFrequency(9000))
}

func TestScheduler_StartTicksImmediatelyAndPeriodically(t *testing.T) {
	rec := &tickLog{}
	s := newTestScheduler(&fakeProbe{}, rec)

	require.NoError(t, s.Start(context.Background(), 5))
	defer s.Stop()

	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, s.Frequency())
	assert.Equal(t, 25*time.Millisecond, s.Interval())
	assert.True(t, s.Running())
}

func TestScheduler_StartRejectsInvalidFrequency(t *testing.T) {
	s := newTestScheduler(&fakeProbe{}, &tickLog{})

	err := s.Start(context.Background(), 4)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
	assert.False(t, s.Running())
}

func TestScheduler_StartTwice(t *testing.T) {
	s := newTestScheduler(&fakeProbe{}, &tickLog{})
	require.NoError(t, s.Start(context.Background(), 5))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(context.Background(), 5), ErrAlreadyStarted)
}

func TestScheduler_ReconfigureOutOfRangeLeavesConfigUnchanged(t *testing.T) {
	s := newTestScheduler(&fakeProbe{}, &tickLog{})
	require.NoError(t, s.Start(context.Background(), 30))
	defer s.Stop()

	assert.ErrorIs(t, s.Reconfigure(4), ErrInvalidFrequency)
	assert.Equal(t, 30, s.Frequency())

	assert.ErrorIs(t, s.Reconfigure(301), ErrInvalidFrequency)
	assert.Equal(t, 30, s.Frequency())
}

func TestScheduler_ReconfigureSwapsCadence(t *testing.T) {
	rec := &tickLog{}
	s := newTestScheduler(&fakeProbe{}, rec)

	require.NoError(t, s.Start(context.Background(), 5))
	defer s.Stop()
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Reconfigure(60)) // 300ms in test units
	assert.Equal(t, 60, s.Frequency())
	after := rec.count()

	// The old 25ms cadence would have produced several ticks by now.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, after, rec.count(), "no tick at the old cadence after Reconfigure returns")

	assert.Eventually(t, func() bool { return rec.count() == after+1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ReconfigureBeforeStart(t *testing.T) {
	s := newTestScheduler(&fakeProbe{}, &tickLog{})
	require.NoError(t, s.Reconfigure(60))
	assert.Equal(t, 60, s.Frequency())
	assert.False(t, s.Running())
}

func TestScheduler_TicksNeverOverlap(t *testing.T) {
	p := &fakeProbe{delay: 15 * time.Millisecond}
	s := newTestScheduler(p, &tickLog{})

	require.NoError(t, s.Start(context.Background(), 5))
	for i := 0; i < 20; i++ {
		freq := 5 + i%2
		require.NoError(t, s.Reconfigure(freq))
		time.Sleep(7 * time.Millisecond)
	}
	s.Stop()

	assert.Greater(t, p.calls.Load(), int32(0))
	assert.Equal(t, int32(1), p.maxSeen.Load())
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	p := &fakeProbe{block: make(chan struct{})}
	rec := &tickLog{}
	s := newTestScheduler(p, rec)

	require.NoError(t, s.Start(context.Background(), 5))
	require.Eventually(t, func() bool { return p.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(p.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, 1, rec.count(), "in-flight tick completes and is recorded")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "no tick after Stop")
	assert.False(t, s.Running())

	s.Stop() // idempotent
}

func TestScheduler_ParentContextCancelStopsLoop(t *testing.T) {
	rec := &tickLog{}
	s := newTestScheduler(&fakeProbe{}, rec)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx, 5))
	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	n := rec.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, rec.count())
	s.Stop()
}

func TestScheduler_ParentContextCancelReportsStopped(t *testing.T) {
	rec := &tickLog{}
	s := newTestScheduler(&fakeProbe{}, rec)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx, 5))
	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	cancel()

	assert.False(t, s.Running())
	require.NoError(t, s.Reconfigure(60))
	assert.Equal(t, 60, s.Frequency())
	assert.False(t, s.Running(), "reconfigure does not revive a cancelled loop")

	n := rec.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.count())

	// a fresh Start is allowed once the old context is gone
	require.NoError(t, s.Start(context.Background(), 5))
	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return rec.count() > n }, time.Second, time.Millisecond)
	s.Stop()
	assert.False(t, s.Running())
}

func TestScheduler_TickContextCarriesContainerAndSequence(t *testing.T) {
	var mu sync.Mutex
	var seen []uint64
	rec := RecorderFunc(func(ctx context.Context, container string, r probe.Reading) {
		n, ok := logger.GetTick(ctx)
		assert.True(t, ok)
		assert.Equal(t, "web", logger.GetContainer(ctx))
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	s := newTestScheduler(&fakeProbe{}, rec)

	require.NoError(t, s.Start(context.Background(), 5))
	require.Eventually(t, func() bool { return s.Ticks() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 3)
	for i, n := range seen {
		assert.Equal(t, uint64(i+1), n)
	}
	assert.Equal(t, uint64(len(seen)), s.Ticks())
}

func TestScheduler_Accessors(t *testing.T) {
	rec := &tickLog{}
	s := newTestScheduler(&fakeProbe{}, rec)

	assert.Equal(t, "web", s.Container())
	assert.Equal(t, DefaultFrequency, s.Frequency())
	assert.Equal(t, time.Duration(DefaultFrequency)*testUnit, s.Interval())
	assert.False(t, s.Running())
	assert.Zero(t, s.Ticks())
}

func TestRecorderFunc(t *testing.T) {
	var got string
	RecorderFunc(func(ctx context.Context, container string, r probe.Reading) {
		got = container
	}).Record(context.Background(), "db", probe.Reading{})
	assert.Equal(t, "db", got)
}
