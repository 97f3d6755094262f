package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Quote is the latest known market state for a symbol.
type Quote struct {
	Price  float64 `json:"price"`
	High   float64 `json:"high,omitempty"`
	Low    float64 `json:"low,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// ShardedQuoteCache holds the latest quote per symbol behind sharded locks, so
// the feed goroutine and the evaluation loop never contend on one mutex.
type ShardedQuoteCache struct {
	shards [numShards]*quoteShard
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]quoteEntry
}

type quoteEntry struct {
	quote     Quote
	updatedAt time.Time
}

// NewShardedQuoteCache creates a new sharded cache.
func NewShardedQuoteCache() *ShardedQuoteCache {
	c := &ShardedQuoteCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &quoteShard{
			items: make(map[string]quoteEntry),
		}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *ShardedQuoteCache) getShard(key string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest quote for a symbol.
func (c *ShardedQuoteCache) Set(symbol string, q Quote) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	shard.items[symbol] = quoteEntry{
		quote:     q,
		updatedAt: time.Now(),
	}
	shard.mu.Unlock()
}

// Get retrieves the latest quote for a symbol.
func (c *ShardedQuoteCache) Get(symbol string) (Quote, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	return entry.quote, ok
}

// GetWithAge retrieves a quote and its age.
func (c *ShardedQuoteCache) GetWithAge(symbol string) (Quote, time.Duration, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok {
		return Quote{}, 0, false
	}
	return entry.quote, time.Since(entry.updatedAt), true
}

// Delete removes a symbol from the cache.
func (c *ShardedQuoteCache) Delete(symbol string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	delete(shard.items, symbol)
	shard.mu.Unlock()
}

// Len returns total items across all shards.
func (c *ShardedQuoteCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge and reports how many.
func (c *ShardedQuoteCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// GetAll returns all cached quotes (for diagnostics/admin).
func (c *ShardedQuoteCache) GetAll() map[string]Quote {
	result := make(map[string]Quote)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for sym, entry := range shard.items {
			result[sym] = entry.quote
		}
		shard.mu.RUnlock()
	}
	return result
}
