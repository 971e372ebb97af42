// Package cache holds the last accepted price per symbol with a fixed
// validity window. Expired entries are kept around: the aggregator's
// final fallback tier serves them explicitly tagged as stale.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinoracle/pricecore/internal/domain"
)

// DefaultWindow is the validity window applied when none is configured.
const DefaultWindow = 60 * time.Second

type entry struct {
	sample     domain.PriceSample
	insertedAt time.Time
}

// PriceCache is the process-wide TTL store of accepted prices.
type PriceCache struct {
	mu      sync.RWMutex
	window  time.Duration
	entries map[string]entry

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache with the given validity window.
func New(window time.Duration) *PriceCache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &PriceCache{
		window:  window,
		entries: make(map[string]entry),
	}
}

// Fresh returns the cached sample for symbol if its age is inside the
// validity window.
func (c *PriceCache) Fresh(symbol string) (domain.PriceSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok || time.Since(e.insertedAt) >= c.window {
		c.misses.Add(1)
		return domain.PriceSample{}, false
	}
	c.hits.Add(1)
	return e.sample, true
}

// Stale returns whatever entry exists for symbol regardless of age,
// along with its insertion time. Used only by the last fallback tier.
func (c *PriceCache) Stale(symbol string) (domain.PriceSample, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok {
		return domain.PriceSample{}, time.Time{}, false
	}
	return e.sample, e.insertedAt, true
}

// Store replaces the entry for the sample's symbol. Replacement is
// atomic per symbol; concurrent writers are last-writer-wins.
func (c *PriceCache) Store(sample domain.PriceSample) {
	c.mu.Lock()
	c.entries[sample.Symbol] = entry{sample: sample, insertedAt: time.Now()}
	c.mu.Unlock()
}

// Seed inserts a sample as already expired so it is only reachable
// through the stale tier. Used to warm the cache from a snapshot store
// at startup without presenting old prices as fresh.
func (c *PriceCache) Seed(sample domain.PriceSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[sample.Symbol]; exists {
		return
	}
	c.entries[sample.Symbol] = entry{sample: sample, insertedAt: time.Now().Add(-c.window)}
}

// Len returns the number of entries, fresh or stale.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counts for the fresh path.
func (c *PriceCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
