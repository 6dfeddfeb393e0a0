package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// resultCache is an in-memory TTL cache of geocode results. Non-matches are
// cached too so repeated bad addresses don't re-pay for provider calls.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	nowFunc func() time.Time
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit",
		zap.String("key", keyPrefix),
		zap.Bool("matched", entry.result.Matched),
	)

	result := entry.result
	return &result, true
}

func (c *resultCache) put(key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		result:    *result,
		expiresAt: c.nowFunc().Add(c.ttl),
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
