package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultMaxItems bounds a cache created with a non-positive size.
const DefaultMaxItems = 1000

// Cache stores compiled artifacts keyed by their source text.
type Cache struct {
	cache    *gocache.Cache
	maxItems int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache whose entries expire after ttl.
func New(ttl, cleanupInterval time.Duration, maxItems int) *Cache {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Cache{
		cache:    gocache.New(ttl, cleanupInterval),
		maxItems: maxItems,
	}
}

// Get returns the entry stored under key.
func (c *Cache) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key with the default expiration.
func (c *Cache) Set(key string, value interface{}) {
	if c == nil {
		return
	}
	if c.cache.ItemCount() >= c.maxItems {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxItems {
			c.cache.Flush()
		}
	}
	c.cache.SetDefault(key, value)
}

// GetOrCompile returns the cached entry for key, calling compile on a miss.
// Failed compilations are not cached.
func (c *Cache) GetOrCompile(key string, compile func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compile()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Len reports the number of cached entries, including expired ones not yet cleaned.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.ItemCount()
}

// Flush drops every entry.
func (c *Cache) Flush() {
	if c != nil {
		c.cache.Flush()
	}
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"items":  c.cache.ItemCount(),
		"hits":   c.hits.Load(),
		"misses": c.misses.Load(),
	}
}
