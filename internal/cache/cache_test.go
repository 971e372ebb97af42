package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinoracle/pricecore/internal/domain"
)

func TestPriceCache_FreshAndExpiry(t *testing.T) {
	c := New(50 * time.Millisecond)

	sample := domain.PriceSample{
		Symbol:     "ETH",
		Value:      3200.5,
		Source:     domain.SourceOnChain,
		ObservedAt: time.Now(),
	}
	c.Store(sample)

	got, ok := c.Fresh("ETH")
	require.True(t, ok)
	assert.Equal(t, sample.Value, got.Value)
	assert.Equal(t, domain.SourceOnChain, got.Source)

	time.Sleep(60 * time.Millisecond)

	_, ok = c.Fresh("ETH")
	assert.False(t, ok, "entry should be expired")

	// Expired entries stay reachable for the stale tier
	stale, insertedAt, ok := c.Stale("ETH")
	require.True(t, ok)
	assert.Equal(t, sample.Value, stale.Value)
	assert.True(t, time.Since(insertedAt) >= 50*time.Millisecond)
}

func TestPriceCache_MissOnUnknownSymbol(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Fresh("BTC")
	assert.False(t, ok)
	_, _, ok = c.Stale("BTC")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestPriceCache_AtomicReplacement(t *testing.T) {
	c := New(time.Minute)

	c.Store(domain.PriceSample{Symbol: "ETH", Value: 3000, Source: domain.SourceREST, ObservedAt: time.Now()})
	c.Store(domain.PriceSample{Symbol: "ETH", Value: 3100, Source: domain.SourceOnChain, ObservedAt: time.Now()})

	got, ok := c.Fresh("ETH")
	require.True(t, ok)
	assert.Equal(t, 3100.0, got.Value)
	assert.Equal(t, domain.SourceOnChain, got.Source)
	assert.Equal(t, 1, c.Len())
}

func TestPriceCache_ConcurrentWriters(t *testing.T) {
	c := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			c.Store(domain.PriceSample{Symbol: "ETH", Value: v, Source: domain.SourceREST, ObservedAt: time.Now()})
			c.Fresh("ETH")
		}(float64(i) + 1)
	}
	wg.Wait()

	// No torn entry: whatever won, it is one of the written values
	got, ok := c.Fresh("ETH")
	require.True(t, ok)
	assert.GreaterOrEqual(t, got.Value, 1.0)
	assert.LessOrEqual(t, got.Value, 32.0)
	assert.Equal(t, 1, c.Len())
}
