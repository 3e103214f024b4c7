package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeReading, "web", 42)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypeReading, e.Type)
	assert.Equal(t, "web", e.Source)
	assert.Equal(t, 42, e.Payload)
	assert.False(t, e.Timestamp.IsZero())
	assert.NotEqual(t, e.ID, NewEvent(TypeReading, "web", 42).ID)
}

func TestInMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	c := &collector{}

	_, err := bus.Subscribe(c.handle)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", nil)))

	require.NoError(t, bus.Close())
	assert.Len(t, c.snapshot(), 1)
}

func TestInMemoryEventBus_SingleWorkerPreservesOrder(t *testing.T) {
	bus := NewInMemoryEventBus(WithWorkerCount(1), WithBufferSize(4))
	c := &collector{}
	_, err := bus.Subscribe(c.handle)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", i)))
	}
	require.NoError(t, bus.Close())

	events := c.snapshot()
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, i, e.Payload)
	}
}

func TestInMemoryEventBus_SubscribersCalledInSubscribeOrder(t *testing.T) {
	bus := NewInMemoryEventBus()

	var mu sync.Mutex
	var calls []string
	record := func(name string) EventHandler {
		return func(Event) error {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		}
	}

	_, err := bus.Subscribe(record("first"))
	require.NoError(t, err)
	_, err = bus.Subscribe(record("second"))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", nil)))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestInMemoryEventBus_Filters(t *testing.T) {
	bus := NewInMemoryEventBus()
	readings := &collector{}
	alerts := &collector{}
	web := &collector{}

	_, err := bus.Subscribe(readings.handle, FilterByType(TypeReading))
	require.NoError(t, err)
	_, err = bus.Subscribe(alerts.handle, FilterByTypes(TypeAlert))
	require.NoError(t, err)
	_, err = bus.Subscribe(web.handle, FilterBySource("web"), FilterByType(TypeAlert))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", nil)))
	require.NoError(t, bus.Publish(NewEvent(TypeAlert, "web", nil)))
	require.NoError(t, bus.Publish(NewEvent(TypeAlert, "db", nil)))
	require.NoError(t, bus.Close())

	assert.Len(t, readings.snapshot(), 1)
	assert.Len(t, alerts.snapshot(), 2)
	assert.Len(t, web.snapshot(), 1)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	bus := NewInMemoryEventBus()
	var after atomic.Int32

	_, err := bus.Subscribe(func(Event) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = bus.Subscribe(func(Event) error { after.Add(1); return nil })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", nil)))
	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", nil)))
	require.NoError(t, bus.Close())

	assert.EqualValues(t, 2, after.Load())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(NewEvent(TypeReading, "web", nil)), ErrClosed)
	_, err := bus.Subscribe(func(Event) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInMemoryEventBus_NilHandler(t *testing.T) {
	bus := NewInMemoryEventBus()
	defer bus.Close()

	_, err := bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestInMemoryEventBus_CloseUnblocksPublisher(t *testing.T) {
	bus := NewInMemoryEventBus(WithBufferSize(1))
	release := make(chan struct{})
	_, err := bus.Subscribe(func(Event) error { <-release; return nil })
	require.NoError(t, err)

	// one event in the handler, one in the buffer, the third blocks
	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", 1)))
	require.NoError(t, bus.Publish(NewEvent(TypeReading, "web", 2)))

	published := make(chan error, 1)
	go func() { published <- bus.Publish(NewEvent(TypeReading, "web", 3)) }()

	time.Sleep(20 * time.Millisecond)
	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()

	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Close")
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}

func TestInMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewInMemoryEventBus(WithWorkerCount(4))
	var count atomic.Int64
	_, err := bus.Subscribe(func(Event) error { count.Add(1); return nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = bus.Publish(NewEvent(TypeReading, "web", i))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, bus.Close())

	assert.EqualValues(t, 800, count.Load())
}
