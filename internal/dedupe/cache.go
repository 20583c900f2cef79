// ABOUTME: TTL cache that recognizes push frames already delivered to the engine.
// ABOUTME: Frames are keyed by an xxhash of event name and payload; expiry is read from an injectable clock.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/2389/chat-sync/internal/clock"
)

// entry records when a frame was last seen and its slot in the eviction list.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers recently delivered frames for a fixed window. It holds at
// most maxSize keys; the oldest key is evicted first. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	clock   clock.Clock
	seen    map[uint64]*entry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
}

// New creates a cache with the given window and capacity.
func New(c clock.Clock, ttl time.Duration, maxSize int) *Cache {
	if c == nil {
		c = clock.Real{}
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		clock:   c,
		seen:    make(map[uint64]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Key hashes an event name and its raw payload.
func Key(event string, payload []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(event)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(payload)
	return d.Sum64()
}

// Seen reports whether the frame was delivered within the window and marks
// it as delivered now. The first caller for a key gets false.
func (c *Cache) Seen(event string, payload []byte) bool {
	return c.checkAndMark(Key(event, payload))
}

func (c *Cache) checkAndMark(key uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.expireLocked(now)

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return true
	}

	if len(c.seen) >= c.maxSize {
		front := c.order.Front()
		k, _ := front.Value.(uint64)
		c.order.Remove(front)
		delete(c.seen, k)
	}
	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
	return false
}

// expireLocked drops keys older than the window from the front of the list.
// Must be called with mu held.
func (c *Cache) expireLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		k, _ := front.Value.(uint64)
		if now.Sub(c.seen[k].seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, k)
	}
}

// Len returns the number of remembered frames.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Reset forgets everything.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.seen)
	c.order.Init()
}
