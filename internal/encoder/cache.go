package encoder

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// embedCache is a bounded LRU over embeddings, content-addressed by
// the xxhash of the slot text. Thread-safe with a single Mutex since
// both Get and Put mutate LRU order.
type embedCache struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	head    *cacheEntry // most recently used
	tail    *cacheEntry // least recently used
	maxSize int

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key       uint64
	embedding []float32
	prev      *cacheEntry
	next      *cacheEntry
}

func newEmbedCache(maxSize int) *embedCache {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &embedCache{
		entries: make(map[uint64]*cacheEntry, maxSize),
		maxSize: maxSize,
	}
}

func cacheKey(text string) uint64 {
	return xxhash.Sum64String(text)
}

// get returns the cached embedding for a key and promotes it. The
// returned slice is shared; callers must not mutate it.
func (c *embedCache) get(key uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		c.hits.Add(1)
		return e.embedding, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *embedCache) put(key uint64, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.embedding = embedding
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &cacheEntry{key: key, embedding: embedding}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

func (c *embedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports lifetime hit and miss counts.
func (c *embedCache) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *embedCache) moveToHeadLocked(e *cacheEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *embedCache) pushHeadLocked(e *cacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *embedCache) unlinkLocked(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *embedCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	victim := c.tail
	c.unlinkLocked(victim)
	delete(c.entries, victim.key)
}
