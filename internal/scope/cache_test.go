package scope

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheTTLExpiry(t *testing.T) {
	c := newCache(10*time.Millisecond, 100)
	key := cacheKey("u1", "docs", 1)

	c.set(key, "docs", Scope{Filters: map[string]interface{}{"tenant_id": "t1"}})
	_, ok := c.get(key)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.get(key)
	assert.False(t, ok, "entry must expire after TTL")
	assert.Equal(t, 0, c.len())
}

func TestCacheLRUEviction(t *testing.T) {
	c := newCache(time.Minute, 3)

	for i := 0; i < 3; i++ {
		c.set(cacheKey(fmt.Sprintf("u%d", i), "docs", 1), "docs", Scope{})
	}
	require.Equal(t, 3, c.len())

	// Touch u0 so u1 becomes the oldest.
	time.Sleep(time.Millisecond)
	_, ok := c.get(cacheKey("u0", "docs", 1))
	require.True(t, ok)

	time.Sleep(time.Millisecond)
	c.set(cacheKey("u3", "docs", 1), "docs", Scope{})

	assert.Equal(t, 3, c.len())
	_, ok = c.get(cacheKey("u1", "docs", 1))
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.get(cacheKey("u0", "docs", 1))
	assert.True(t, ok)
}

func TestCacheInvalidateCollection(t *testing.T) {
	c := newCache(time.Minute, 100)

	c.set(cacheKey("u1", "docs", 1), "docs", Scope{})
	c.set(cacheKey("u2", "docs", 1), "docs", Scope{})
	c.set(cacheKey("u1", "notes", 1), "notes", Scope{})

	c.invalidateCollection("docs")

	_, ok := c.get(cacheKey("u1", "docs", 1))
	assert.False(t, ok)
	_, ok = c.get(cacheKey("u2", "docs", 1))
	assert.False(t, ok)
	_, ok = c.get(cacheKey("u1", "notes", 1))
	assert.True(t, ok, "other collections must survive")
}

func TestCacheCopiesScopes(t *testing.T) {
	c := newCache(time.Minute, 100)
	key := cacheKey("u1", "docs", 1)

	original := Scope{Filters: map[string]interface{}{"tenant_id": "t1"}}
	c.set(key, "docs", original)

	got, ok := c.get(key)
	require.True(t, ok)
	got.Filters["tenant_id"] = "tampered"

	fresh, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, "t1", fresh.Filters["tenant_id"], "cached scope must not be mutable through returned copies")
}
