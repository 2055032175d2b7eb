package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotEntry is the on-disk representation of one cache entry.
type snapshotEntry struct {
	Key       string    `msgpack:"key"`
	Value     []byte    `msgpack:"value"`
	ExpiresAt time.Time `msgpack:"expires_at"`
}

// Snapshot writes all unexpired entries to path with msgpack. The snapshot
// is a best-effort warm start across restarts; the cache never consults it
// for freshness decisions.
func (c *Cache) Snapshot(path string) error {
	now := c.clock()

	c.mu.RLock()
	entries := make([]snapshotEntry, 0, len(c.entries))
	for k, e := range c.entries {
		if now.Before(e.expiresAt) {
			entries = append(entries, snapshotEntry{Key: k, Value: e.value, ExpiresAt: e.expiresAt})
		}
	}
	c.mu.RUnlock()

	data, err := msgpack.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn snapshot.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize cache snapshot: %w", err)
	}
	return nil
}

// Restore loads a snapshot written by Snapshot, skipping entries that have
// expired in the meantime. A missing file is not an error.
func (c *Cache) Restore(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal cache snapshot: %w", err)
	}

	now := c.clock()
	c.mu.Lock()
	for _, e := range entries {
		if now.Before(e.ExpiresAt) {
			c.entries[e.Key] = entry{value: e.Value, expiresAt: e.ExpiresAt}
		}
	}
	c.mu.Unlock()
	return nil
}
