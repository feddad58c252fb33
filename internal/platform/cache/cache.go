// Package cache provides an in-memory caching layer with lazy TTL expiry.
package cache

import (
	"sync"
	"time"
)

// Cache defines the interface for a generic TTL cache
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns the value and true if found and not expired, nil and false otherwise.
	Get(key string) (interface{}, bool)

	// Set stores a value in the cache with a TTL.
	// If ttl is 0, the item never expires.
	Set(key string, value interface{}, ttl time.Duration)

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Size returns the current number of items in the cache.
	Size() int
}

// entry represents a cached item with its expiry timestamp
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache implements an in-memory cache with TTL support.
//
// Expiry is lazy: entries are checked against the clock on Get, there is no
// background eviction goroutine. At fleet scale (hundreds of keys) expired
// entries are cheap to carry until the next read or Clear.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry
}

// NewMemoryCache creates a new in-memory TTL cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]entry),
	}
}

// Get retrieves a value from the cache.
// An entry past its expiry is a miss and is dropped on the spot.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists {
		return nil, false
	}

	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}

	return e.value, true
}

// Set stores a value in the cache with a TTL.
// If the key already exists, its value and TTL are replaced.
// If ttl is 0, the item never expires.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.items[key] = entry{value: value, expiresAt: expiresAt}
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all values from the cache.
// Callers invoke this after any operation that changes the underlying source
// of truth, e.g. a fleet refresh.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry)
}

// Size returns the current number of items in the cache, expired ones included.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all keys currently in the cache (excluding expired items).
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(c.items))

	for key, e := range c.items {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, key)
	}

	return keys
}

// GetOrCompute returns the cached value for key, computing and storing it on a
// miss. The lock is NOT held across compute, so concurrent misses for the same
// key may each run compute independently; last writer wins. compute must
// therefore be idempotent. Serializing misses is deliberately avoided: a
// duplicate version lookup is cheaper than holding a lock across a network
// call.
func (c *MemoryCache) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}

	c.Set(key, v, ttl)
	return v, nil
}
