package ai

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CacheTTL bounds how long a memoized operation result may be served.
const CacheTTL = 5 * time.Minute

// canonicalKey serializes parts deterministically. encoding/json sorts map
// keys and walks struct fields in declaration order, so identical arguments
// always produce identical keys.
func canonicalKey(parts ...any) string {
	buf := make([]byte, 0, 64)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, 0x1f)
		}
		b, err := json.Marshal(p)
		if err != nil {
			buf = append(buf, fmt.Sprintf("%v", p)...)
			continue
		}
		buf = append(buf, b...)
	}
	return string(buf)
}

// CacheKey builds a provider-namespaced cache key for an operation and its
// serialized arguments.
func CacheKey(provider, op string, args ...any) string {
	return provider + ":" + op + ":" + canonicalKey(args...)
}

// Fingerprint derives a session-dedup fingerprint from an effective
// configuration.
func Fingerprint(parts ...any) string {
	return canonicalKey(parts...)
}

type cacheEntry struct {
	result    any
	timestamp time.Time
	hits      int
}

// ResultCache is a time-bounded memoization table keyed by operation
// fingerprint. Stale entries are evicted lazily on read or in bulk via Sweep.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
	now     func() time.Time
}

// NewResultCache creates a cache with the given TTL (CacheTTL if zero).
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached result for key and counts the hit. An entry older
// than the TTL is never served; it is evicted instead.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	e.hits++
	return e.result, true
}

// Put stores a freshly computed result under key.
func (c *ResultCache) Put(key string, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{result: result, timestamp: c.now()}
}

// Sweep evicts every stale entry and returns how many were removed.
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.timestamp.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops all entries.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits returns the hit count for key (0 if absent).
func (c *ResultCache) Hits(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.hits
	}
	return 0
}
