// Package ttlcache provides a small in-memory map with per-entry expiry.
//
// Expiry is checked when an entry is read, and a periodic sweep removes
// entries that can no longer be served. Entries are never extended by reads.
package ttlcache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu             sync.Mutex
	items          map[K]entry[V]
	ttl            time.Duration
	staleRetention time.Duration
	now            func() time.Time
}

type Option func(*options)

type options struct {
	now            func() time.Time
	staleRetention time.Duration
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithStaleRetention keeps expired entries reachable through Peek for d
// after their TTL has passed.
func WithStaleRetention(d time.Duration) Option {
	return func(o *options) {
		o.staleRetention = d
	}
}

func New[K comparable, V any](ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &Cache[K, V]{
		items:          make(map[K]entry[V]),
		ttl:            ttl,
		staleRetention: o.staleRetention,
		now:            o.now,
	}
}

// Set inserts or overwrites the entry for key and restarts its TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{value: value, insertedAt: c.now()}
}

// Get returns the value only while it is younger than the TTL.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.insertedAt) >= c.ttl {
		if c.staleRetention == 0 {
			delete(c.items, key)
		}
		return zero, false
	}

	return e.value, true
}

// Peek returns the last stored value regardless of TTL, as long as the
// sweeper has not removed it yet.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Sweep removes entries older than TTL plus stale retention and reports how
// many were dropped.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	horizon := c.ttl + c.staleRetention
	now := c.now()
	removed := 0
	for key, e := range c.items {
		if now.Sub(e.insertedAt) >= horizon {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, including stale ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Run sweeps every interval until ctx is done.
func (c *Cache[K, V]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}
