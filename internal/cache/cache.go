// Package cache stores similarity scores between claim text and resolved
// policy spans. Keys carry digests and the snapshot version only; neither
// claim text nor policy text ever appears in a key, a filename, or a
// cached value.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Cache is a byte-value store with per-entry TTL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ScoreKey derives the cache key for a similarity score. Changing the
// snapshot version changes every key, so a new policy snapshot can never
// be served stale scores.
func ScoreKey(a, b, snapshotVersion string) string {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return "triage.v1." + hex.EncodeToString(ha[:8]) + "." + hex.EncodeToString(hb[:8]) + "." + snapshotVersion
}

// GetScore reads a similarity score. A corrupt value reads as a miss.
func GetScore(c Cache, key string) (float64, bool) {
	raw, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	score, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

// SetScore stores a similarity score.
func SetScore(c Cache, key string, score float64, ttl time.Duration) error {
	return c.Set(key, []byte(strconv.FormatFloat(score, 'g', -1, 64)), ttl)
}
