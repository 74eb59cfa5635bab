package aggregation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Cache memoizes aggregation results per (portfolio, date, positions-hash)
// for 60 seconds (spec.md §4.D). Any write that mutates positions or
// their Greeks must call Clear so stale aggregates are never served.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewCache builds a Cache with the given TTL (spec.md default: 60s).
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: map[string]cacheEntry{}, now: time.Now}
}

// Key builds the cache key for a (portfolio, date, positions) tuple. The
// positions hash is a content hash so a position update invalidates the
// entry even without an explicit Clear call.
func Key(portfolioID, calcDate string, positions []PositionAggregate) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", portfolioID, calcDate)
	for _, p := range positions {
		fmt.Fprintf(h, "%s:%f:%f;", p.PositionID, p.MarketValue, p.Exposure)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached value and whether it was present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Clear invalidates every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}
