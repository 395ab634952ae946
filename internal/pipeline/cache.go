package pipeline

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/your-org/vtrack/internal/models"
)

// ResultCache maps frame fingerprints to the most recent detection result.
// Entries expire after a fixed TTL regardless of access pattern — a stale
// detection is worse than a cache miss — and the capacity bound evicts the
// least-recently-used entry first. Safe for concurrent use by all sessions.
type ResultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[models.FrameHash]*list.Element
	order    *list.List // front = most recently used

	now func() time.Time
}

type cacheEntry struct {
	hash     models.FrameHash
	dets     []models.Detection
	storedAt time.Time
}

// NewResultCache creates a cache with the given TTL and capacity bound.
func NewResultCache(ttl time.Duration, capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[models.FrameHash]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached detections for a fingerprint. Expired entries are
// treated as absent and removed on access.
func (c *ResultCache) Get(hash models.FrameHash) ([]models.Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.entries[hash]
	if !ok {
		return nil, false
	}
	entry := ele.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.remove(ele)
		return nil, false
	}
	c.order.MoveToFront(ele)
	return entry.dets, true
}

// Put stores detections for a fingerprint, evicting the least-recently-used
// entry when at capacity.
func (c *ResultCache) Put(hash models.FrameHash, dets []models.Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.entries[hash]; ok {
		entry := ele.Value.(*cacheEntry)
		entry.dets = dets
		entry.storedAt = c.now()
		c.order.MoveToFront(ele)
		return
	}

	for len(c.entries) >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.remove(back)
		}
	}

	ele := c.order.PushFront(&cacheEntry{hash: hash, dets: dets, storedAt: c.now()})
	c.entries[hash] = ele
}

// Len returns the number of resident entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps expired entries periodically until ctx is cancelled, bounding
// memory held by fingerprints that are never looked up again.
func (c *ResultCache) Run(ctx context.Context) {
	interval := c.ttl
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ResultCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for ele := c.order.Back(); ele != nil; {
		prev := ele.Prev()
		if entry := ele.Value.(*cacheEntry); now.Sub(entry.storedAt) >= c.ttl {
			c.remove(ele)
		}
		ele = prev
	}
}

// remove expects c.mu held.
func (c *ResultCache) remove(ele *list.Element) {
	entry := ele.Value.(*cacheEntry)
	delete(c.entries, entry.hash)
	c.order.Remove(ele)
}
