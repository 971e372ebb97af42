// Package rest queries a REST price API as the secondary source. All
// failures are soft: the caller gets an error and moves down the
// fallback chain, nothing is retried here.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/coinoracle/pricecore/internal/domain"
)

// DefaultTimeout bounds a single price request.
const DefaultTimeout = 10 * time.Second

// Source fetches prices from a price-by-identifier endpoint returning
// {"<id>": {"usd": <float>}}.
type Source struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates a REST source for the given base URL. The circuit opens
// after repeated consecutive failures so a dead upstream is skipped
// cheaply instead of eating the timeout on every lookup.
func New(baseURL string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	settings := gobreaker.Settings{Name: "rest-price-api"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 30 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Source{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GetPrice queries the provider for the asset's USD price.
func (s *Source) GetPrice(ctx context.Context, asset domain.Asset) (*domain.PriceSample, error) {
	if asset.ProviderID == "" {
		return nil, fmt.Errorf("no provider id configured for %s", asset.Symbol)
	}

	value, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, asset.ProviderID)
	})
	if err != nil {
		log.Debug().Err(err).Str("symbol", asset.Symbol).Msg("REST price fetch failed")
		return nil, err
	}

	return &domain.PriceSample{
		Symbol:     asset.Symbol,
		Value:      value.(float64),
		Source:     domain.SourceREST,
		ObservedAt: time.Now(),
	}, nil
}

func (s *Source) fetch(ctx context.Context, providerID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		s.baseURL, url.QueryEscape(providerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("%w: provider returned 429", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from price API", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	// Strict decode: an unknown shape or missing field is a failure,
	// never a zero price.
	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("malformed price response: %w", err)
	}
	quote, ok := payload[providerID]
	if !ok {
		return 0, fmt.Errorf("provider id %s missing from response", providerID)
	}
	usd, ok := quote["usd"]
	if !ok {
		return 0, fmt.Errorf("usd quote missing for %s", providerID)
	}
	return usd, nil
}
