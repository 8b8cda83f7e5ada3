package scope

import (
	"strconv"
	"sync"
	"time"
)

// cacheEntry is one cached scope.
type cacheEntry struct {
	scope        Scope
	collection   string
	expiresAt    time.Time
	lastAccessed time.Time
}

// cache is a thread-safe TTL cache with LRU eviction, keyed by
// (principalID, collection, configVersion).
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

func cacheKey(principalID, collection string, version int64) string {
	return principalID + "|" + collection + "|" + strconv.FormatInt(version, 10)
}

func (c *cache) get(key string) (Scope, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return Scope{}, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Scope{}, false
	}

	c.mu.Lock()
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	return entry.scope.clone(), true
}

func (c *cache) set(key, collection string, s Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	c.entries[key] = &cacheEntry{
		scope:        s.clone(),
		collection:   collection,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
}

// invalidateCollection drops every entry for the given collection,
// regardless of principal or config version.
func (c *cache) invalidateCollection(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
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
