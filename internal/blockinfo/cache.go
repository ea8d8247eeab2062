package blockinfo

import (
	"container/list"
	"sync"

	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Cache keeps the most recently used block tag snapshots
// Entries must be invalidated whenever their block is written or erased
type Cache struct {
	dev interfaces.FlashReader

	entries map[types.BlockNum]*list.Element
	order   *list.List // front is most recently used

	maxEntries int

	hits      int64
	misses    int64
	evictions int64

	mu sync.RWMutex
}

// CacheStats returns current cache statistics
type CacheStats struct {
	Entries   int     `json:"entries" yaml:"entries"`
	Hits      int64   `json:"hits" yaml:"hits"`
	Misses    int64   `json:"misses" yaml:"misses"`
	Evictions int64   `json:"evictions" yaml:"evictions"`
	HitRate   float64 `json:"hit_rate" yaml:"hit_rate"`
}

// DefaultCacheSize is used when a non-positive size is requested
const DefaultCacheSize = 16

// NewCache creates a block info cache over a flash device
func NewCache(dev interfaces.FlashReader, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &Cache{
		dev:        dev,
		entries:    make(map[types.BlockNum]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the tag snapshot of a block, loading it on a miss
func (c *Cache) Get(block types.BlockNum) *BlockInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[block]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*BlockInfo)
	}

	c.misses++
	bi := Load(c.dev, block)
	c.entries[block] = c.order.PushFront(bi)

	for c.order.Len() > c.maxEntries {
		c.evictOldest()
	}
	return bi
}

func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	bi := elem.Value.(*BlockInfo)
	delete(c.entries, bi.Block)
	c.order.Remove(elem)
	c.evictions++
}

// Invalidate drops the snapshot of a block
func (c *Cache) Invalidate(block types.BlockNum) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[block]; ok {
		delete(c.entries, block)
		c.order.Remove(elem)
	}
}

// Clear drops every snapshot
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[types.BlockNum]*list.Element)
	c.order = list.New()
}

// Stats returns statistics about cache performance
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}
