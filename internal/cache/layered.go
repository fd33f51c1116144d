package cache

import "time"

// LayeredCache fronts a disk cache with a memory cache. A verification
// pass within one process stays hot in memory; scores survive restarts on
// disk for as long as the snapshot they were computed against.
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewLayeredCache builds the two tiers. The memory janitor runs on a
// fixed sweep; disk entries carry their own expiry.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

// Get checks memory, then disk. A disk hit is promoted into memory under
// the memory tier's default TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	v, ok := c.disk.Get(key)
	if !ok {
		return nil, false
	}
	_ = c.memory.Set(key, v, 0)
	return v, true
}

// Set writes through to both tiers.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes key from both tiers.
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

// Clear empties both tiers.
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}
