// ABOUTME: Tests for the dedupe cache of recently credited outpoints.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type outpoint struct {
	txid string
	vout uint32
}

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration, size int) (*Cache[outpoint], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[outpoint](ttl, size)
	c.now = clock.Now
	return c, clock
}

func TestCache_MarkAndCheck(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	op := outpoint{"aa", 0}
	assert.False(t, cache.Check(op))
	cache.Mark(op)
	assert.True(t, cache.Check(op))
	assert.False(t, cache.Check(outpoint{"aa", 1}), "vout is part of the key")
}

func TestCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	op := outpoint{"aa", 0}
	cache.Mark(op)
	clock.Advance(59 * time.Second)
	assert.True(t, cache.Check(op))

	clock.Advance(time.Second)
	assert.False(t, cache.Check(op))
}

func TestCache_MarkRefreshes(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	op := outpoint{"aa", 0}
	cache.Mark(op)
	clock.Advance(40 * time.Second)
	cache.Mark(op)
	clock.Advance(40 * time.Second)

	assert.True(t, cache.Check(op))
}

func TestCache_EvictionOrder(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 3)
	defer cache.Close()

	for i := 0; i < 3; i++ {
		cache.Mark(outpoint{"tx", uint32(i)})
	}
	cache.Mark(outpoint{"tx", 3})

	assert.False(t, cache.Check(outpoint{"tx", 0}), "oldest should be evicted")
	for i := 1; i <= 3; i++ {
		assert.True(t, cache.Check(outpoint{"tx", uint32(i)}))
	}
	assert.Len(t, cache.seen, 3)
}

func TestCache_Cleanup(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	cache.Mark(outpoint{"a", 0})
	cache.Mark(outpoint{"b", 0})
	clock.Advance(30 * time.Second)
	cache.Mark(outpoint{"c", 0})
	clock.Advance(45 * time.Second)

	cache.runCleanup()

	assert.Len(t, cache.seen, 1)
	assert.True(t, cache.Check(outpoint{"c", 0}))
}

func TestCache_Concurrent(t *testing.T) {
	cache := New[string](5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id%26, j%10)
				cache.Mark(key)
				cache.Check(key)
			}
		}(i)
	}
	wg.Wait()

	cache.Mark("final-key")
	assert.True(t, cache.Check("final-key"))
}

func TestCache_Close(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	cache.Close()
	cache.Close()
}
