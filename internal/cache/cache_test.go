package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(model, method string, arg int) Key {
	return NewKey("testdb", 2, model, method,
		[]interface{}{arg}, nil, "abcd1234abcd1234")
}

func TestCacheable(t *testing.T) {
	for _, method := range []string{"read", "search", "search_read", "search_count", "read_group", "fields_get", "name_search"} {
		assert.True(t, Cacheable(method), method)
	}
	for _, method := range []string{"create", "write", "unlink", "action_confirm", "copy", ""} {
		assert.False(t, Cacheable(method), method)
	}
}

func TestHashArgs_Stability(t *testing.T) {
	a := HashArgs([]interface{}{1, "x"}, map[string]interface{}{"limit": 5, "offset": 0})
	b := HashArgs([]interface{}{1, "x"}, map[string]interface{}{"offset": 0, "limit": 5})
	assert.Equal(t, a, b, "kwarg ordering must not change the digest")
	assert.Len(t, a, 16)

	c := HashArgs([]interface{}{1, "x"}, map[string]interface{}{"limit": 6, "offset": 0})
	assert.NotEqual(t, a, c, "different arguments must not collide")

	assert.Equal(t, HashArgs(nil, nil), HashArgs([]interface{}{}, map[string]interface{}{}),
		"nil and empty arguments are the same call")
}

func TestCache_GetPut(t *testing.T) {
	c := NewWithLimits(time.Minute, 8)

	key := testKey("res.partner", "read", 1)
	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, "value-1")
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "value-1", got)

	c.Put(key, "value-2")
	got, _ = c.Get(key)
	assert.Equal(t, "value-2", got)
	assert.Equal(t, 1, c.Len(), "overwrite must not duplicate the entry")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewWithLimits(30*time.Millisecond, 8)

	key := testKey("res.partner", "read", 1)
	c.Put(key, "value")

	_, ok := c.Get(key)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on lookup")
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewWithLimits(time.Minute, 3)

	for i := 1; i <= 3; i++ {
		c.Put(testKey("res.partner", "read", i), fmt.Sprintf("v%d", i))
	}

	// Touch 1 so 2 becomes the oldest.
	_, ok := c.Get(testKey("res.partner", "read", 1))
	require.True(t, ok)

	c.Put(testKey("res.partner", "read", 4), "v4")

	_, ok = c.Get(testKey("res.partner", "read", 2))
	assert.False(t, ok, "least recently used entry is evicted")
	for _, i := range []int{1, 3, 4} {
		_, ok := c.Get(testKey("res.partner", "read", i))
		assert.True(t, ok, "entry %d survives", i)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_InvalidateModel(t *testing.T) {
	c := NewWithLimits(time.Minute, 8)

	c.Put(testKey("res.partner", "read", 1), "p1")
	c.Put(testKey("res.partner", "search_read", 2), "p2")
	c.Put(testKey("sale.order", "read", 3), "s1")
	c.Put(NewKey("otherdb", 2, "res.partner", "read", []interface{}{1}, nil, "abcd1234abcd1234"), "other")

	assert.Equal(t, 2, c.InvalidateModel("testdb", "res.partner"))

	_, ok := c.Get(testKey("sale.order", "read", 3))
	assert.True(t, ok, "other models survive")
	_, ok = c.Get(NewKey("otherdb", 2, "res.partner", "read", []interface{}{1}, nil, "abcd1234abcd1234"))
	assert.True(t, ok, "other databases survive")
	_, ok = c.Get(testKey("res.partner", "read", 1))
	assert.False(t, ok)
}

func TestCache_SchemaVersionPartitionsEntries(t *testing.T) {
	c := NewWithLimits(time.Minute, 8)

	old := NewKey("testdb", 2, "res.partner", "read", []interface{}{1}, nil, "oldversion000000")
	c.Put(old, "stale")

	fresh := NewKey("testdb", 2, "res.partner", "read", []interface{}{1}, nil, "newversion000000")
	_, ok := c.Get(fresh)
	assert.False(t, ok, "a new fingerprint never hits entries from the old one")

	assert.Equal(t, 1, c.DropOtherVersions("newversion000000"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_Disabled(t *testing.T) {
	for _, c := range []*Cache{NewWithLimits(0, 8), NewWithLimits(time.Minute, 0)} {
		key := testKey("res.partner", "read", 1)
		c.Put(key, "value")
		_, ok := c.Get(key)
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	c := NewWithLimits(time.Minute, 8)
	c.Put(testKey("res.partner", "read", 1), "v")
	c.Put(testKey("res.partner", "read", 2), "v")

	c.Clear()
	assert.Equal(t, 0, c.Len())

	// Reusable after Clear.
	c.Put(testKey("res.partner", "read", 3), "v")
	_, ok := c.Get(testKey("res.partner", "read", 3))
	assert.True(t, ok)
}
