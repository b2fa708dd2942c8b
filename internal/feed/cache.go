package feed

import (
	"sync"
	"time"
)

// Cache is a TTL response cache scoped to a single ingestion pass. A hit
// short-circuits both the rate limiter and the network call. Eviction is
// time-based only; entries are dropped lazily on access and wholesale by
// Reset at the start of each run.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time // injectable for deterministic tests
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns the cached value for key and whether a live entry was found.
// An expired entry is removed and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Reset discards every entry. Called at the start of each run so no response
// leaks across runs.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry)
}

// Len returns the number of entries currently held, including expired ones
// not yet dropped.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
