package finnhub

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type cacheKey struct {
	endpoint string
	symbol   string
}

type cacheEntry struct {
	fetched time.Time
	payload map[string]any
}

// Cache is a TTL cache of decoded endpoint payloads keyed by
// (endpoint, symbol), backed by ttlcache. Freshness is also checked
// against the injected clock, and expired entries are evicted on read.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	items *ttlcache.Cache[cacheKey, cacheEntry]
}

// NewCache creates a cache whose entries live for ttl. A non-positive ttl
// disables caching.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl: ttl,
		now: now,
		items: ttlcache.New[cacheKey, cacheEntry](
			ttlcache.WithTTL[cacheKey, cacheEntry](ttl),
			ttlcache.WithDisableTouchOnHit[cacheKey, cacheEntry](),
		),
	}
}

// Get returns the cached payload if it is younger than the TTL.
func (c *Cache) Get(endpoint, symbol string) (map[string]any, bool) {
	key := cacheKey{endpoint, symbol}
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	e := item.Value()
	if c.now().Sub(e.fetched) >= c.ttl {
		c.items.Delete(key)
		return nil, false
	}
	return e.payload, true
}

// Set stores a payload. Callers must not mutate it afterwards.
func (c *Cache) Set(endpoint, symbol string, payload map[string]any) {
	if c.ttl <= 0 {
		return
	}
	c.items.Set(cacheKey{endpoint, symbol}, cacheEntry{fetched: c.now(), payload: payload}, ttlcache.DefaultTTL)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.items.DeleteAll()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	return c.items.Len()
}
