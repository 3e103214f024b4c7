// Package eventbus fans tick results out to in-process consumers.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jguan/container-monitor/pkg/infra/logger"
)

var (
	ErrClosed     = errors.New("eventbus is closed")
	ErrNilHandler = errors.New("handler cannot be nil")
)

const (
	TypeReading = "monitor.reading"
	TypeAlert   = "monitor.alert"
)

type Event struct {
	ID        string
	Type      string
	Source    string
	Payload   any
	Timestamp time.Time
}

// NewEvent stamps a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

type SubscriptionID string

type EventHandler func(event Event) error

type EventFilter func(event Event) bool

type EventBus interface {
	Publish(event Event) error
	Subscribe(handler EventHandler, filters ...EventFilter) (SubscriptionID, error)
	Close() error
}

// InMemoryEventBus dispatches events on a pool of workers. With a single
// worker, handlers observe events in publish order.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]*subscription
	order       []SubscriptionID
	eventChan   chan Event
	workerCount int
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
	filters []EventFilter
}

type config struct {
	bufferSize  int
	workerCount int
	logger      *slog.Logger
}

type Option func(*config)

func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

func WithWorkerCount(count int) Option {
	return func(c *config) {
		if count > 0 {
			c.workerCount = count
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewInMemoryEventBus(opts ...Option) *InMemoryEventBus {
	cfg := &config{
		bufferSize:  256,
		workerCount: 1,
		logger:      logger.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &InMemoryEventBus{
		subscribers: make(map[SubscriptionID]*subscription),
		eventChan:   make(chan Event, cfg.bufferSize),
		workerCount: cfg.workerCount,
		logger:      cfg.logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < bus.workerCount; i++ {
		bus.wg.Add(1)
		go bus.worker()
	}

	return bus
}

// Publish queues event for dispatch. It blocks while the buffer is full
// and fails once the bus is closed.
func (b *InMemoryEventBus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-b.ctx.Done():
		return ErrClosed
	}
}

func (b *InMemoryEventBus) Subscribe(handler EventHandler, filters ...EventFilter) (SubscriptionID, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrClosed
	}

	id := SubscriptionID(uuid.NewString())
	b.subscribers[id] = &subscription{
		id:      id,
		handler: handler,
		filters: filters,
	}
	b.order = append(b.order, id)

	return id, nil
}

// Close stops accepting events, waits for queued events to be dispatched
// and drops all subscriptions. Close is idempotent.
func (b *InMemoryEventBus) Close() error {
	// Unblock publishers waiting on a full buffer before taking the lock.
	b.cancel()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	b.subscribers = make(map[SubscriptionID]*subscription)
	b.order = nil
	b.mu.Unlock()

	return nil
}

func (b *InMemoryEventBus) worker() {
	defer b.wg.Done()

	for event := range b.eventChan {
		b.dispatchEvent(event)
	}
}

func (b *InMemoryEventBus) dispatchEvent(event Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !matchFilters(event, sub.filters) {
			continue
		}
		if err := sub.handler(event); err != nil {
			b.logger.Warn("event handler failed",
				"event_type", event.Type,
				"source", event.Source,
				"subscription", sub.id,
				"error", err,
			)
		}
	}
}

func matchFilters(event Event, filters []EventFilter) bool {
	for _, filter := range filters {
		if !filter(event) {
			return false
		}
	}
	return true
}

func FilterByType(eventType string) EventFilter {
	return func(event Event) bool {
		return event.Type == eventType
	}
}

func FilterByTypes(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

func FilterBySource(source string) EventFilter {
	return func(event Event) bool {
		return event.Source == source
	}
}
