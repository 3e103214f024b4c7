// Package ratelimit throttles settings writes per client.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

var ErrEmptyKey = errors.New("key cannot be empty")

type Limiter interface {
	Allow(key string) (bool, error)
}

// TokenBucketLimiter keeps one bucket per key. Buckets refill continuously
// at rate tokens per second up to capacity. A bucket that has refilled is
// indistinguishable from a new one, so such buckets are dropped once per
// refill period.
type TokenBucketLimiter struct {
	rate     float64
	capacity float64
	refill   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

type Option func(*TokenBucketLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *TokenBucketLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a limiter refilling rate tokens per second. Non-positive
// arguments fall back to 1.
func New(rate float64, capacity int64, opts ...Option) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1.0
	}
	if capacity <= 0 {
		capacity = 1
	}
	l := &TokenBucketLimiter{
		rate:     rate,
		capacity: float64(capacity),
		refill:   time.Duration(float64(capacity) / rate * float64(time.Second)),
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// PerMinute allows n requests per minute per key with a burst of n.
func PerMinute(n int, opts ...Option) *TokenBucketLimiter {
	return New(float64(n)/60, int64(n), opts...)
}

func (l *TokenBucketLimiter) Allow(key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.refill {
		l.sweep(now)
	}

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: l.capacity, lastUpdate: now}
		l.buckets[key] = b
	}

	// Fractional tokens carry over so slow rates still refill.
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*l.rate, l.capacity)
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// sweep drops full buckets. Must be called with l.mu held.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if b.tokens+now.Sub(b.lastUpdate).Seconds()*l.rate >= l.capacity {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
