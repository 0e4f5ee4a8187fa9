package vision

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache stores finished descriptions. Implementations expire entries after
// the TTL given to Set.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// CacheKey identifies one image in one slide of one collection.
func CacheKey(imageHash string, slideNumber int, collectionID string) string {
	return fmt.Sprintf("%s_%d_%s", imageHash, slideNumber, collectionID)
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	mu      sync.Mutex
}

// NewMemoryCache creates an empty cache using the wall clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates an empty cache driven by now.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}
