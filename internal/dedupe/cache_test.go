// ABOUTME: Tests for the frame dedupe cache.
// ABOUTME: Validates the window, refresh on repeat, eviction order, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/chat-sync/internal/clock"
)

func newTestCache(ttl time.Duration, size int) (*Cache, *clock.Fake) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(c, ttl, size), c
}

func TestCache_FirstDeliveryIsNotSeen(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 100)

	assert.False(t, cache.Seen("message:created", []byte(`{"id":1}`)))
	assert.True(t, cache.Seen("message:created", []byte(`{"id":1}`)))
}

func TestCache_EventNameIsPartOfKey(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 100)

	payload := []byte(`{"id":1}`)
	assert.False(t, cache.Seen("message:created", payload))
	assert.False(t, cache.Seen("message:updated", payload))
}

func TestCache_Expires(t *testing.T) {
	cache, c := newTestCache(10*time.Second, 100)

	cache.Seen("message:created", []byte(`{"id":1}`))
	c.Advance(10 * time.Second)

	assert.False(t, cache.Seen("message:created", []byte(`{"id":1}`)))
}

func TestCache_RepeatRefreshesWindow(t *testing.T) {
	cache, c := newTestCache(10*time.Second, 100)

	cache.Seen("e", []byte("a"))
	c.Advance(6 * time.Second)
	assert.True(t, cache.Seen("e", []byte("a")))

	// Past the first sighting's window, inside the refreshed one.
	c.Advance(6 * time.Second)
	assert.True(t, cache.Seen("e", []byte("a")))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 3)

	cache.Seen("e", []byte("first"))
	cache.Seen("e", []byte("second"))
	cache.Seen("e", []byte("third"))
	cache.Seen("e", []byte("fourth"))

	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Seen("e", []byte("first")), "first should be evicted")
}

func TestCache_Reset(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)
	cache.Seen("e", []byte("x"))
	cache.Reset()
	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.Seen("e", []byte("x")))
}

func TestCache_ConcurrentSingleWinner(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 1000)

	const workers = 100
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			if !cache.Seen("message:created", []byte(`{"id":42}`)) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one delivery should pass")
}

func TestKey_Distinct(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := range 1000 {
		k := Key("message:created", fmt.Appendf(nil, `{"id":%d}`, i))
		assert.False(t, seen[k])
		seen[k] = true
	}
}
