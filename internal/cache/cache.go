// Package cache provides the in-process result cache sitting in front of
// every remote read.
//
// Granularity is one slot per logical collection ("sales", "custs", ...)
// rather than per query - filtering and sorting happen on the full set.
// Entries older than the TTL are bypassed, not evicted: the next refresh
// overwrites them in place. The cache does not survive process restart;
// the durable snapshot in internal/store does.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultTTL is how long a cached collection is considered fresh.
const DefaultTTL = 30 * time.Second

type entry struct {
	data      json.RawMessage
	timestamp time.Time
}

// Cache is a TTL-bounded map of cache key to serialized collection.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithNow overrides the time source. Used by tests to control staleness.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache with DefaultTTL.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if it is still fresh.
// A stale entry returns (nil, false) but stays in place until the next Put.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.timestamp) >= c.ttl {
		return nil, false
	}
	return e.data, true
}

// Put stores a value for key, stamping it with the current time.
// At most one entry exists per key - the last writer wins.
func (c *Cache) Put(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, timestamp: c.now()}
}

// Invalidate drops the entry for key, forcing the next read to fetch.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
