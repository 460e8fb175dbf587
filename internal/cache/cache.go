package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rawblock/babel-engine/internal/clock"
	"github.com/rawblock/babel-engine/pkg/models"
)

// Request-Fingerprint Result Cache
//
// Memoizes pipeline outputs keyed by the search fingerprint. Entries carry
// their creation time and expire after the TTL; capacity is bounded with
// least-recently-accessed eviction. A single mutex guards all operations;
// the critical sections are map/list bookkeeping only, never scoring work.
//
// Get returns a fresh copy of the result slice, so a snapshot handed to one
// reader is never observably mutated by a later Put of the same fingerprint.

// Cache is a TTL + LRU bounded store of search result sets.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	clk        clock.Clock

	entries map[string]*list.Element
	order   *list.List // front = most recently accessed
}

// New builds a cache. maxEntries < 1 falls back to 1; a nil clock falls
// back to the system clock.
func New(ttl time.Duration, maxEntries int, clk clock.Clock) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		clk:        clk,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the entry for a fingerprint if present and unexpired.
// Expired entries are removed on access. The returned entry holds a copy
// of the result slice.
func (c *Cache) Get(fingerprint string) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return models.CacheEntry{}, false
	}
	entry := el.Value.(models.CacheEntry)

	if c.clk.Now().Sub(entry.CreatedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, fingerprint)
		return models.CacheEntry{}, false
	}

	c.order.MoveToFront(el)
	return copyEntry(entry), true
}

// Put inserts or overwrites the results for a fingerprint, stamping the
// entry with the cache clock. At capacity, the least-recently-accessed
// entry is evicted first.
func (c *Cache) Put(fingerprint string, results []models.DecodedPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := models.CacheEntry{
		Fingerprint: fingerprint,
		Results:     append([]models.DecodedPage(nil), results...),
		CreatedAt:   c.clk.Now(),
	}

	if el, ok := c.entries[fingerprint]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(models.CacheEntry).Fingerprint)
	}

	c.entries[fingerprint] = c.order.PushFront(entry)
}

// Invalidate removes a single fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fingerprint]; ok {
		c.order.Remove(el)
		delete(c.entries, fingerprint)
	}
}

// Flush removes all entries.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns copies of all unexpired entries, most recently accessed
// first. Used by the checkpoint store.
func (c *Cache) Snapshot() []models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	out := make([]models.CacheEntry, 0, len(c.entries))
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(models.CacheEntry)
		if now.Sub(entry.CreatedAt) >= c.ttl {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	return out
}

// Restore loads checkpointed entries, dropping any already past TTL.
// Existing entries with the same fingerprint are overwritten.
func (c *Cache) Restore(entries []models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	for _, entry := range entries {
		if now.Sub(entry.CreatedAt) >= c.ttl {
			continue
		}
		entry.Results = append([]models.DecodedPage(nil), entry.Results...)
		if el, ok := c.entries[entry.Fingerprint]; ok {
			el.Value = entry
			continue
		}
		for len(c.entries) >= c.maxEntries {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(models.CacheEntry).Fingerprint)
		}
		c.entries[entry.Fingerprint] = c.order.PushBack(entry)
	}
}

func copyEntry(e models.CacheEntry) models.CacheEntry {
	return models.CacheEntry{
		Fingerprint: e.Fingerprint,
		Results:     append([]models.DecodedPage(nil), e.Results...),
		CreatedAt:   e.CreatedAt,
	}
}
