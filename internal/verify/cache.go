package verify

import (
	"sync"
	"time"
)

// Cache memoizes verifier results by normalized-text key with a TTL, so
// near-duplicate headlines within a run and across runs are classified once.
// The clock is injected for deterministic tests.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

// NewCache creates a TTL cache. A nil now func uses the wall clock.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached result for key if present and not expired.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

// Put stores a result under key. No-opinion results are not cached so a
// transient provider outage does not suppress classification for the TTL.
func (c *Cache) Put(key string, r Result) {
	if r.Opinion == OpinionNone && r.Confidence == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: r, expires: c.now().Add(c.ttl)}
}

// Len reports the number of live entries, expired ones included until read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
