// ABOUTME: Thread-safe TTL cache of recently seen keys, generic over the key type.
// ABOUTME: Used by the funding service to short-circuit duplicate payment submissions.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry[K comparable] struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a TTL-based, size-limited set of recently seen keys. A linked
// list keeps insertion order so the oldest key is evicted in O(1).
type Cache[K comparable] struct {
	mu      sync.RWMutex
	seen    map[K]*cacheEntry[K]
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size.
// A background goroutine periodically drops expired entries.
func New[K comparable](ttl time.Duration, maxSize int) *Cache[K] {
	c := &Cache[K]{
		seen:    make(map[K]*cacheEntry[K]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Check returns true if key was seen within the TTL.
func (c *Cache[K]) Check(key K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[key]
	if !ok {
		return false
	}
	return c.now().Sub(entry.timestamp) < c.ttl
}

// Mark records key as seen, evicting the oldest key when full.
func (c *Cache[K]) Mark(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// markLocked must be called with mu held.
func (c *Cache[K]) markLocked(key K) {
	now := c.now()

	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry[K]{timestamp: now, element: elem}
}

// evictOldest must be called with mu held.
func (c *Cache[K]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(K)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache[K]) cleanup() {
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

// runCleanup removes all expired entries.
func (c *Cache[K]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache[K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
