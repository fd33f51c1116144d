package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskCache persists scores across process restarts so embedding calls are
// not repeated for an unchanged snapshot. One file per key; writes go
// through a temp file and rename so a crashed process never leaves a
// half-written entry behind.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache creates a disk cache rooted at dir. The directory is
// created lazily on first write.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl}
}

// diskEntry is the on-disk record. It carries the expiry with the value so
// a restarted process honors TTLs set by its predecessor.
type diskEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get reads key from disk. Expired and corrupt entries read as misses and
// are removed.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry diskEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}
	return entry.Data, true
}

// Set writes key to disk atomically. A zero ttl uses the cache default.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(diskEntry{Data: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Delete removes key's file.
func (c *DiskCache) Delete(key string) error {
	return os.Remove(c.path(key))
}

// Clear removes the whole cache directory.
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

func (c *DiskCache) path(key string) string {
	// Keys come from ScoreKey and contain no path separators.
	return filepath.Join(c.dir, key+".cache")
}
