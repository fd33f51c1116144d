package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps scores hot for the duration of a verification pass.
// Entries expire on their own TTL; the janitor sweeps on cleanupInterval.
type MemoryCache struct {
	entries *gocache.Cache
}

// NewMemoryCache creates an in-process score cache.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{entries: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns the cached value for key, if present and unexpired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set stores value under key. A zero ttl uses the cache default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.entries.Set(key, value, ttl)
	return nil
}

// Delete drops key.
func (c *MemoryCache) Delete(key string) error {
	c.entries.Delete(key)
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear() error {
	c.entries.Flush()
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.entries.ItemCount()
}
