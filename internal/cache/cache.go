// Package cache provides the process-wide expiring cache shared by all
// upstream clients. Entries carry an absolute expiry; a read at or after
// expiry is a miss, never a stale hit.
package cache

import (
	"strings"
	"sync"
	"time"
)

// entry is a stored value with its absolute expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a concurrency-safe key -> (value, expiry) store. Values are
// opaque byte payloads (clients store JSON-encoded records). There is no
// eviction beyond TTL expiry; the key space is bounded by the distinct
// (source, operation, parameters) tuples actually queried.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		clock:   time.Now,
	}
}

// Key builds a cache key from a source, an operation and normalized
// parameters, e.g. Key("tefas", "history", "AAK", "2024-01-01").
func Key(source, op string, params ...string) string {
	parts := append([]string{source, op}, params...)
	return strings.Join(parts, ":")
}

// Get returns the stored value for key, or ok=false on a miss. An entry
// whose TTL has elapsed is a miss regardless of how recently it was read.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.clock().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl. Overlapping writes on the same key
// are last-writer-wins.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.clock().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes all expired entries and returns how many were dropped.
// Run periodically by the scheduler; correctness does not depend on it
// because Get enforces expiry itself.
func (c *Cache) Purge() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
