package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey(ProviderBuiltin, "summarizeContent", "some text", SummarizeOptions{Type: "tldr"})
	b := CacheKey(ProviderBuiltin, "summarizeContent", "some text", SummarizeOptions{Type: "tldr"})
	assert.Equal(t, a, b)
}

func TestCacheKeyDistinguishesArguments(t *testing.T) {
	base := CacheKey(ProviderBuiltin, "translateText", "hello", "en", "es")

	assert.NotEqual(t, base, CacheKey(ProviderBuiltin, "translateText", "hello", "en", "fr"))
	assert.NotEqual(t, base, CacheKey(ProviderBuiltin, "translateText", "hello!", "en", "es"))
	assert.NotEqual(t, base, CacheKey(ProviderCloud, "translateText", "hello", "en", "es"))
	assert.NotEqual(t, base, CacheKey(ProviderBuiltin, "rewriteText", "hello", "en", "es"))
}

func TestCacheKeyMapOrderIndependent(t *testing.T) {
	// encoding/json sorts map keys, so insertion order must not matter.
	m1 := map[string]string{"tone": "more-formal", "length": "shorter"}
	m2 := map[string]string{"length": "shorter", "tone": "more-formal"}
	assert.Equal(t, CacheKey(ProviderBuiltin, "rewriteText", m1), CacheKey(ProviderBuiltin, "rewriteText", m2))
}

func TestResultCacheHitAndExpiry(t *testing.T) {
	cache := NewResultCache(5 * time.Minute)
	clock := time.Now()
	cache.now = func() time.Time { return clock }

	key := CacheKey(ProviderBuiltin, "summarizeContent", "long article")
	cache.Put(key, "a summary")

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "a summary", got)
	assert.Equal(t, 1, cache.Hits(key))

	// Just inside the TTL the entry is still served.
	clock = clock.Add(5 * time.Minute)
	_, ok = cache.Get(key)
	assert.True(t, ok)

	// Past the TTL it is evicted, never served stale.
	clock = clock.Add(time.Second)
	_, ok = cache.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestResultCacheSweep(t *testing.T) {
	cache := NewResultCache(time.Minute)
	clock := time.Now()
	cache.now = func() time.Time { return clock }

	cache.Put("old", 1)
	clock = clock.Add(2 * time.Minute)
	cache.Put("fresh", 2)

	removed := cache.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("fresh")
	assert.True(t, ok)
}

func TestResultCacheClear(t *testing.T) {
	cache := NewResultCache(time.Minute)
	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}
