package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a response answers repeated prompts
// without spending provider quota.
const DefaultCacheTTL = time.Hour

// cacheKey derives the lookup key for a generation call. The prompt
// embeds user timeline data, so entries are naturally per-user; identity
// is included as an extra isolation guarantee.
func cacheKey(task, model, identity, prompt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", task, model, identity, prompt)))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	text    string
	expires time.Time
}

// responseCache is an in-memory TTL cache for provider responses.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.text, true
}

func (c *responseCache) put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{text: text, expires: time.Now().Add(c.ttl)}
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
