package stats

import (
	"sync"
	"time"
)

type cacheEntry struct {
	volume       Volume
	collection   string
	expiresAt    time.Time
	lastAccessed time.Time
}

// cache is a thread-safe TTL cache with LRU eviction, keyed by
// (collection, scope fingerprint).
type cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newCache(ttl time.Duration, maxEntries int) *cache {
	return &cache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func cacheKey(collection, fingerprint string) string {
	return collection + "|" + fingerprint
}

func (c *cache) get(key string) (Volume, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return Volume{}, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Volume{}, false
	}

	c.mu.Lock()
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	return entry.volume, true
}

func (c *cache) set(key, collection string, v Volume) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	c.entries[key] = &cacheEntry{
		volume:       v,
		collection:   collection,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
}

// invalidate drops the entry for one (collection, fingerprint) pair, or
// every entry of the collection when fingerprint is empty.
func (c *cache) invalidate(collection, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fingerprint != "" {
		delete(c.entries, cacheKey(collection, fingerprint))
		return
	}
	for key, entry := range c.entries {
		if entry.collection == collection {
			delete(c.entries, key)
		}
	}
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (c *cache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, entry := range c.entries {
		if first || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
