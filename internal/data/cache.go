package data

import (
	"context"
	"sync"
	"time"
)

// MarketsCacheKey is the key under which the markets proxy stores its body
const MarketsCacheKey = "markets"

// CacheConfig holds configuration for the in-memory cache
type CacheConfig struct {
	MaxEntries int
}

// DefaultCacheConfig returns sensible default configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 64,
	}
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryCache is a fixed-window response cache held in process memory
type InMemoryCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	clock   func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryCache creates a new in-memory cache with default config
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithConfig(DefaultCacheConfig())
}

// NewInMemoryCacheWithConfig creates a new in-memory cache with custom config
func NewInMemoryCacheWithConfig(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		clock:   time.Now,
	}
}

// Get returns a copy of the cached value if it has not expired
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || !c.clock().Before(entry.expiresAt) {
		return nil, false, nil
	}

	// Return a copy to prevent external modification
	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, true, nil
}

// Set stores value for ttl. Expired entries are dropped first; when the cache
// is still full the entry closest to expiry is evicted.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if _, exists := c.entries[key]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evict(now)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = cacheEntry{value: stored, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryCache) evict(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.config.MaxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}
