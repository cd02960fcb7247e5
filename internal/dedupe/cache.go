// ABOUTME: Thread-safe TTL cache of idempotency keys for create requests
// ABOUTME: Claims a key atomically and remembers the resource it produced until the key expires

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the claim time, the produced resource id and the list element for a key.
type entry struct {
	claimed time.Time
	value   string
	element *list.Element
}

// Cache is a TTL-based, size-limited set of idempotency keys. A key claimed
// within the TTL is a duplicate. Uses a doubly-linked list in claim order for
// O(1) eviction of the oldest key.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys in claim order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the specified TTL and maximum size.
// A background goroutine periodically removes expired keys.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Claim atomically checks and claims key. It returns duplicate=true with the
// value recorded for an unexpired key (empty while the first request is still
// running). Otherwise the key is now claimed by the caller.
func (c *Cache) Claim(key string) (value string, duplicate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok {
		if now.Sub(e.claimed) < c.ttl {
			return e.value, true
		}
		c.removeLocked(key, e)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &entry{
		claimed: now,
		element: c.order.PushBack(key),
	}
	return "", false
}

// Set records the resource id produced for a claimed key. Unknown keys are ignored.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
	}
}

// Release drops a claim so the key can be retried, e.g. after the request failed.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Len returns the number of tracked keys, including expired ones not yet cleaned up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// removeLocked deletes key. Must be called with mu held.
func (c *Cache) removeLocked(key string, e *entry) {
	c.order.Remove(e.element)
	delete(c.entries, key)
}

// evictOldest removes the oldest key. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired keys.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired keys.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.claimed) >= c.ttl {
			c.removeLocked(key, e)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
