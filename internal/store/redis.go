package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/coinoracle/pricecore/internal/domain"
)

const lastPriceKeyPrefix = "pricecore:last:"

// LastPriceStore keeps the most recent accepted sample per symbol in
// redis so a restarted process can seed its stale tier instead of
// starting blind.
type LastPriceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLastPriceStore wraps a redis client. Entries expire after ttl so
// a long-dead process does not resurrect ancient prices.
func NewLastPriceStore(client *redis.Client, ttl time.Duration) *LastPriceStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LastPriceStore{client: client, ttl: ttl}
}

// Save stores the sample as the symbol's latest, refreshing the TTL.
func (s *LastPriceStore) Save(ctx context.Context, sample domain.PriceSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample for %s: %w", sample.Symbol, err)
	}
	if err := s.client.Set(ctx, lastPriceKeyPrefix+sample.Symbol, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store last price for %s: %w", sample.Symbol, err)
	}
	return nil
}

// Load returns the persisted latest sample for symbol, or an error when
// none exists.
func (s *LastPriceStore) Load(ctx context.Context, symbol string) (*domain.PriceSample, error) {
	payload, err := s.client.Get(ctx, lastPriceKeyPrefix+symbol).Bytes()
	if err != nil {
		return nil, fmt.Errorf("no persisted price for %s: %w", symbol, err)
	}

	var sample domain.PriceSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, fmt.Errorf("corrupt persisted price for %s: %w", symbol, err)
	}
	return &sample, nil
}
