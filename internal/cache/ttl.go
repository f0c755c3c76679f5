// Package cache provides the in-process caches owned by pipeline components:
// a TTL string cache for intent labels and an LRU vector cache for embedding
// memoization. Both take an injectable clock so tests control time.
package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	value     string
	writtenAt time.Time
}

// TTLCache is a mutex-guarded map whose entries expire after a fixed TTL.
// Writes are idempotent per key; expired entries are dropped lazily on read
// and eagerly by Sweep.
type TTLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]ttlEntry
}

// NewTTLCache creates a TTL cache. A nil now defaults to time.Now.
func NewTTLCache(ttl time.Duration, now func() time.Time) *TTLCache {
	if now == nil {
		now = time.Now
	}
	return &TTLCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]ttlEntry),
	}
}

// Get returns the live value for key, if any.
func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.writtenAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key, resetting its TTL.
func (c *TTLCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: value, writtenAt: c.now()}
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.writtenAt) >= c.ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of entries, including not-yet-swept expired ones.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
