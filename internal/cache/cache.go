// Package cache memoizes read-only Odoo results.
//
// Entries are scoped to the full call identity — database, uid, model,
// method, argument digest, and the schema fingerprint active at the time —
// so a permission change, schema migration, or different argument set can
// never serve a stale row. Writes invalidate by (database, model).
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"odoomcp/internal/config"
)

// cacheableMethods are the read-only model methods whose results may be
// served from cache. Everything else bypasses it.
var cacheableMethods = map[string]struct{}{
	"read":         {},
	"search":       {},
	"search_read":  {},
	"search_count": {},
	"read_group":   {},
	"fields_get":   {},
	"name_search":  {},
}

// Cacheable reports whether an Odoo method is safe to memoize.
func Cacheable(method string) bool {
	_, ok := cacheableMethods[method]
	return ok
}

// Key identifies one cached result. Two calls share an entry only when every
// dimension matches, including the schema fingerprint current when the
// result was produced.
type Key struct {
	Database      string
	UID           int64
	Model         string
	Method        string
	ArgsHash      string
	SchemaVersion string
}

// NewKey builds a cache key, collapsing positional and named arguments into
// a stable digest.
func NewKey(database string, uid int64, model, method string, args []interface{}, kwargs map[string]interface{}, schemaVersion string) Key {
	return Key{
		Database:      database,
		UID:           uid,
		Model:         model,
		Method:        method,
		ArgsHash:      HashArgs(args, kwargs),
		SchemaVersion: schemaVersion,
	}
}

// HashArgs digests the canonical JSON encoding of the call arguments.
// encoding/json sorts map keys, so equal arguments always produce the same
// digest regardless of construction order.
func HashArgs(args []interface{}, kwargs map[string]interface{}) string {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	payload, err := json.Marshal(struct {
		Args   []interface{}          `json:"args"`
		Kwargs map[string]interface{} `json:"kwargs"`
	}{args, kwargs})
	if err != nil {
		// Arguments arrive from JSON decoding, so this is out of the
		// ordinary; degrade to a textual digest rather than failing.
		payload = []byte(fmt.Sprint(args, kwargs))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

type entry struct {
	key     Key
	value   interface{}
	expires time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is a bounded TTL cache with least-recently-used eviction.
//
// A zero TTL or zero capacity disables it: Get always misses and Put is a
// no-op.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List // front = most recently used
	hits    uint64
	misses  uint64
}

// New creates a cache from the gateway configuration.
func New(cfg *config.GatewayConfig) *Cache {
	return NewWithLimits(cfg.CacheTTL(), cfg.CacheMaxEntries)
}

// NewWithLimits creates a cache with an explicit TTL and capacity.
func NewWithLimits(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
	}
}

func (c *Cache) disabled() bool {
	return c.ttl <= 0 || c.maxEntries <= 0
}

// Get returns the cached value for key. Expired entries are removed on
// lookup and count as misses.
func (c *Cache) Get(key Key) (interface{}, bool) {
	if c.disabled() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expires) {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entries when
// the cache is full.
func (c *Cache) Put(key Key, value interface{}) {
	if c.disabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	el := c.order.PushFront(&entry{key: key, value: value, expires: time.Now().Add(c.ttl)})
	c.entries[key] = el
}

// InvalidateModel drops every entry for (database, model). Writes call this
// so a mutation is never followed by a stale read.
func (c *Cache) InvalidateModel(database, model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropMatching(func(k Key) bool {
		return k.Database == database && k.Model == model
	})
}

// DropOtherVersions removes entries tagged with a schema fingerprint other
// than current. Entries with a stale tag can never be hit again anyway;
// this reclaims their space eagerly after a detected schema change.
func (c *Cache) DropOtherVersions(current string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropMatching(func(k Key) bool {
		return k.SchemaVersion != current
	})
}

// Clear drops all entries. Counters survive.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*list.Element)
	c.order.Init()
}

// Stats returns hit/miss counters and the live entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove unlinks an element from both indexes. Caller holds mu.
func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

// dropMatching removes every entry whose key satisfies match and returns
// the count. Caller holds mu.
func (c *Cache) dropMatching(match func(Key) bool) int {
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*entry).key) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}
