package genealogy

import (
	"sync"
	"time"
)

// cacheEntry holds a cached resolution result.
type cacheEntry struct {
	chain     []Entry
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Cache is a thread-safe in-memory cache of resolved chains, keyed by batch
// id. Entries expire after a configurable TTL. A minted block can appear in
// the resolved chain of any descendant batch, not just its own, so writers
// should Flush the whole cache rather than Invalidate a single key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache creates a Cache with the given entry TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get looks up a cached chain by batch id.
func (c *Cache) Get(batchID string) ([]Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[batchID]
	if !ok || e.expired() {
		return nil, false
	}
	return e.chain, true
}

// Set stores a resolved chain.
func (c *Cache) Set(batchID string, chain []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[batchID] = &cacheEntry{
		chain:     chain,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate removes a specific entry from the cache.
func (c *Cache) Invalidate(batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, batchID)
}

// Flush drops every entry. Mints flush the whole cache because a new block
// changes the resolved chain of every batch downstream of it.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Evict removes all expired entries and reports how many were dropped.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
