package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyIsStableAndDiscriminating(t *testing.T) {
	base := cacheKey("weekly_summary", "gemini-1.5-flash", "self", "prompt")

	assert.Equal(t, base, cacheKey("weekly_summary", "gemini-1.5-flash", "self", "prompt"))
	assert.NotEqual(t, base, cacheKey("symptom_interpretation", "gemini-1.5-flash", "self", "prompt"))
	assert.NotEqual(t, base, cacheKey("weekly_summary", "gemini-1.5-pro", "self", "prompt"))
	assert.NotEqual(t, base, cacheKey("weekly_summary", "gemini-1.5-flash", "other", "prompt"))
	assert.NotEqual(t, base, cacheKey("weekly_summary", "gemini-1.5-flash", "self", "other prompt"))
}

func TestResponseCacheRoundTrip(t *testing.T) {
	cache := newResponseCache(time.Minute)

	_, ok := cache.get("missing")
	assert.False(t, ok)

	cache.put("k", "cached response")
	text, ok := cache.get("k")
	require.True(t, ok)
	assert.Equal(t, "cached response", text)
	assert.Equal(t, 1, cache.len())
}

func TestResponseCacheExpiry(t *testing.T) {
	cache := newResponseCache(time.Millisecond)
	cache.put("k", "short lived")

	time.Sleep(10 * time.Millisecond)

	_, ok := cache.get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.len())
}

func TestResponseCacheDefaultTTL(t *testing.T) {
	cache := newResponseCache(0)
	assert.Equal(t, DefaultCacheTTL, cache.ttl)
}
