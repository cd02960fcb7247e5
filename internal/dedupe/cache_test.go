// ABOUTME: Tests for the idempotency key cache
// ABOUTME: Validates claiming, recorded values, TTL expiry, eviction, cleanup and concurrency

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_ClaimNew(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	value, dup := cache.Claim("team-1:key-1")
	assert.False(t, dup)
	assert.Empty(t, value)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_ClaimDuplicateReturnsValue(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("k")

	value, dup := cache.Claim("k")
	assert.True(t, dup)
	assert.Empty(t, value, "value is empty while the first request is in flight")

	cache.Set("k", "prompt-123")

	value, dup = cache.Claim("k")
	assert.True(t, dup)
	assert.Equal(t, "prompt-123", value)
}

func TestCache_SetUnknownKeyIgnored(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Set("never-claimed", "x")
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Release(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("k")
	cache.Release("k")

	_, dup := cache.Claim("k")
	assert.False(t, dup, "released key can be claimed again")
}

func TestCache_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Claim("k")
	cache.Set("k", "old")
	time.Sleep(20 * time.Millisecond)

	value, dup := cache.Claim("k")
	assert.False(t, dup)
	assert.Empty(t, value)
}

func TestCache_EvictsOldest(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	for i := range 4 {
		cache.Claim(fmt.Sprintf("k%d", i))
	}

	assert.Equal(t, 3, cache.Len())
	_, dup := cache.Claim("k0")
	assert.False(t, dup, "oldest key should have been evicted")
}

func TestCache_RunCleanup(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Claim("a")
	cache.Claim("b")
	time.Sleep(20 * time.Millisecond)
	cache.Claim("c")

	cache.runCleanup()

	assert.Equal(t, 1, cache.Len())
}

func TestCache_ConcurrentClaimSingleWinner(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, dup := cache.Claim("same-key"); !dup {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestCache_CloseIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	assert.NotPanics(t, cache.Close)
}
