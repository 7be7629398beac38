package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with the time it was stored
type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a thread-safe key/value store whose entries expire after a TTL.
// A zero TTL disables the cache: Set is ignored and Get always misses.
type Cache[K comparable, V any] struct {
	data   map[K]entry[V]
	mutex  sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// New creates a Cache with the given TTL and starts its cleanup goroutine
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	c := newCache[K, V](ttl, time.Now)
	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

// NewWithClock creates a Cache that reads time from now and runs no background cleanup
func NewWithClock[K comparable, V any](ttl time.Duration, now func() time.Time) *Cache[K, V] {
	return newCache[K, V](ttl, now)
}

func newCache[K comparable, V any](ttl time.Duration, now func() time.Time) *Cache[K, V] {
	return &Cache[K, V]{
		data:   make(map[K]entry[V]),
		ttl:    ttl,
		now:    now,
		stopCh: make(chan struct{}),
	}
}

// Enabled reports whether the cache stores anything at all
func (c *Cache[K, V]) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get retrieves a value if it exists and has not expired
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if !c.Enabled() {
		return zero, false
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.data[key]
	if !exists || c.now().Sub(e.storedAt) > c.ttl {
		return zero, false
	}
	return e.value, true
}

// Set stores a value stamped with the current time
func (c *Cache[K, V]) Set(key K, value V) {
	if !c.Enabled() {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = entry[V]{value: value, storedAt: c.now()}
}

// Delete removes a key
func (c *Cache[K, V]) Delete(key K) {
	if c == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
}

// Size returns the number of stored entries, expired or not
func (c *Cache[K, V]) Size() int {
	if c == nil {
		return 0
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.data)
}

// cleanup runs periodically to remove expired entries
func (c *Cache[K, V]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RemoveExpired()
		case <-c.stopCh:
			return
		}
	}
}

// RemoveExpired drops every entry older than the TTL
func (c *Cache[K, V]) RemoveExpired() {
	if c == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, e := range c.data {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache[K, V]) Stop() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stopCh) })
}
