// Package cache provides a small in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

// Cache maps string keys to values of type V. Entries expire after their
// TTL; a zero TTL uses the default and a negative default never expires.
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]item[V]
	// gen counts invalidations; a load that spans one is not stored.
	gen  uint64
	opts options
}

type item[V any] struct {
	value      V
	expiration time.Time
}

type options struct {
	defaultTTL time.Duration
	now        func() time.Time
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func New[V any](opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		items: make(map[string]item[V]),
		opts:  o,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok, _ := c.lookup(key)
	return v, ok
}

func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value, ttl)
}

// GetOrLoad returns the cached value for key or the result of load. The
// loaded value is stored only if no Delete ran while load was in flight.
func (c *Cache[V]) GetOrLoad(key string, load func() V) V {
	c.mu.Lock()
	v, ok, gen := c.lookup(key)
	c.mu.Unlock()
	if ok {
		return v
	}

	v = load()

	c.mu.Lock()
	if c.gen == gen {
		c.store(key, v, 0)
	}
	c.mu.Unlock()
	return v
}

// Delete drops key and invalidates any load already in flight.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.gen++
}

func (c *Cache[V]) lookup(key string) (V, bool, uint64) {
	var zero V
	it, found := c.items[key]
	if !found {
		return zero, false, c.gen
	}
	if !it.expiration.IsZero() && !c.opts.now().Before(it.expiration) {
		delete(c.items, key)
		return zero, false, c.gen
	}
	return it.value, true, c.gen
}

func (c *Cache[V]) store(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.opts.defaultTTL
	}
	var expiration time.Time
	if ttl > 0 {
		expiration = c.opts.now().Add(ttl)
	}
	c.items[key] = item[V]{value: value, expiration: expiration}
}
