// Package aggregator answers "what is the best known price for asset X
// right now, and how was it obtained". It consults the cache first and
// on miss walks the fallback chain in strict trust order: on-chain
// oracle, REST API, last streamed trade, stale cache, nothing. A tier
// is only skipped when the tier above it explicitly failed.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinoracle/pricecore/internal/cache"
	"github.com/coinoracle/pricecore/internal/domain"
	"github.com/coinoracle/pricecore/internal/metrics"
	"github.com/coinoracle/pricecore/internal/net/budget"
	"github.com/coinoracle/pricecore/internal/registry"
)

// DefaultMaxRetries is the advisory retry threshold: once a symbol's
// consecutive on-chain failures reach it, the failure is logged at
// error level. Retries are never actually blocked.
const DefaultMaxRetries = 3

// PriceSource is a fetching tier of the fallback chain.
type PriceSource interface {
	GetPrice(ctx context.Context, asset domain.Asset) (*domain.PriceSample, error)
}

// LastTradeSource is the stream tier: the freshest trade seen per
// symbol, if any venue has ever reported it.
type LastTradeSource interface {
	LastKnown(symbol string) (*domain.PriceSample, bool)
}

// SnapshotSink receives accepted samples for persistence. Writes are
// best-effort and asynchronous; a failing sink never affects a lookup.
type SnapshotSink interface {
	Save(ctx context.Context, sample domain.PriceSample) error
}

// SnapshotLoader supplies previously persisted samples for warm starts.
type SnapshotLoader interface {
	Load(ctx context.Context, symbol string) (*domain.PriceSample, error)
}

// Options wires the aggregator's collaborators. Registry, Validator and
// Cache are required; sources and sinks are optional tiers.
type Options struct {
	Registry  *registry.Registry
	Validator *registry.Validator
	Cache     *cache.PriceCache

	OnChain PriceSource
	REST    PriceSource
	Stream  LastTradeSource

	Budget     *budget.Tracker // for the utilization gauge only
	Sinks      []SnapshotSink
	Metrics    *metrics.Registry
	MaxRetries int
}

// Aggregator is the orchestrator behind the public price surface.
type Aggregator struct {
	registry  *registry.Registry
	validator *registry.Validator
	cache     *cache.PriceCache

	onchain PriceSource
	rest    PriceSource
	stream  LastTradeSource

	budget     *budget.Tracker
	sinks      []SnapshotSink
	metrics    *metrics.Registry
	retries    *RetryState
	maxRetries int
}

// New creates an aggregator from its collaborators.
func New(opts Options) *Aggregator {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Aggregator{
		registry:   opts.Registry,
		validator:  opts.Validator,
		cache:      opts.Cache,
		onchain:    opts.OnChain,
		rest:       opts.REST,
		stream:     opts.Stream,
		budget:     opts.Budget,
		sinks:      opts.Sinks,
		metrics:    opts.Metrics,
		retries:    NewRetryState(),
		maxRetries: maxRetries,
	}
}

// GetPrice returns the best known price for symbol along with its
// provenance, or ErrNoData when every tier is exhausted. Per-source
// failures are absorbed here; only an unregistered symbol surfaces as
// ErrNotFound.
func (a *Aggregator) GetPrice(ctx context.Context, symbol string) (*domain.PriceSample, error) {
	asset, ok := a.registry.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, symbol)
	}

	// Fast path: a fresh cache entry means no network activity at all.
	if sample, ok := a.cache.Fresh(symbol); ok {
		if a.metrics != nil {
			a.metrics.CacheHits.Inc()
		}
		return &sample, nil
	}
	if a.metrics != nil {
		a.metrics.CacheMisses.Inc()
	}

	if sample := a.tryOnChain(ctx, asset); sample != nil {
		return sample, nil
	}
	if sample := a.tryREST(ctx, asset); sample != nil {
		return sample, nil
	}
	if sample := a.tryStream(asset); sample != nil {
		return sample, nil
	}
	if sample := a.tryStale(symbol); sample != nil {
		return sample, nil
	}

	a.tier(string(domain.SourceStaleCache), "miss")
	return nil, fmt.Errorf("%w: %s", domain.ErrNoData, symbol)
}

// AddCustomToken registers a tracked asset. Pass-through to the
// registry: malformed metadata fails the whole operation and nothing is
// registered.
func (a *Aggregator) AddCustomToken(asset domain.Asset) error {
	if err := a.registry.Register(asset); err != nil {
		return err
	}
	a.gaugeAssets()
	return nil
}

// RemoveCustomToken deregisters a tracked asset.
func (a *Aggregator) RemoveCustomToken(symbol string) error {
	if err := a.registry.Deregister(symbol); err != nil {
		return err
	}
	a.gaugeAssets()
	return nil
}

// Retries exposes the per-symbol failure count for observability.
func (a *Aggregator) Retries(symbol string) int {
	return a.retries.Count(symbol)
}

// Seed warms the stale tier from a snapshot store so a restarted
// process is not blind until the first successful fetch. Seeded entries
// are never served as fresh.
func (a *Aggregator) Seed(ctx context.Context, loader SnapshotLoader) {
	if loader == nil {
		return
	}
	seeded := 0
	for _, symbol := range a.registry.Symbols() {
		sample, err := loader.Load(ctx, symbol)
		if err != nil || sample == nil {
			continue
		}
		if !a.validator.Validate(symbol, sample.Value) {
			continue
		}
		a.cache.Seed(*sample)
		seeded++
	}
	if seeded > 0 {
		log.Info().Int("symbols", seeded).Msg("Cache stale tier seeded from snapshot store")
	}
}

func (a *Aggregator) tryOnChain(ctx context.Context, asset domain.Asset) *domain.PriceSample {
	if a.onchain == nil || !asset.HasFeed() {
		return nil
	}
	defer a.gaugeBudget()

	sample, err := a.onchain.GetPrice(ctx, asset)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			// Local quota denial: not a failed attempt, no retry accounting.
			a.tier(string(domain.SourceOnChain), "rate_limited")
			log.Debug().Str("symbol", asset.Symbol).Msg("On-chain tier skipped, rate limited")
			return nil
		}

		count := a.retries.Increment(asset.Symbol)
		a.tier(string(domain.SourceOnChain), "error")
		if a.metrics != nil {
			a.metrics.OnChainRetries.WithLabelValues(asset.Symbol).Inc()
		}

		evt := log.Warn()
		if count >= a.maxRetries {
			evt = log.Error()
		}
		evt.Err(err).
			Str("symbol", asset.Symbol).
			Int("retry_count", count).
			Msg("On-chain read failed, falling back")
		return nil
	}

	a.retries.Reset(asset.Symbol)
	return a.accept(asset.Symbol, *sample, string(domain.SourceOnChain))
}

func (a *Aggregator) tryREST(ctx context.Context, asset domain.Asset) *domain.PriceSample {
	if a.rest == nil || asset.ProviderID == "" {
		return nil
	}

	sample, err := a.rest.GetPrice(ctx, asset)
	if err != nil {
		a.tier(string(domain.SourceREST), "error")
		log.Warn().Err(err).Str("symbol", asset.Symbol).Msg("REST fallback failed")
		return nil
	}
	return a.accept(asset.Symbol, *sample, string(domain.SourceREST))
}

func (a *Aggregator) tryStream(asset domain.Asset) *domain.PriceSample {
	if a.stream == nil {
		return nil
	}

	sample, ok := a.stream.LastKnown(asset.Symbol)
	if !ok {
		a.tier(string(domain.SourceStream), "miss")
		return nil
	}
	return a.accept(asset.Symbol, *sample, string(domain.SourceStream))
}

func (a *Aggregator) tryStale(symbol string) *domain.PriceSample {
	sample, insertedAt, ok := a.cache.Stale(symbol)
	if !ok {
		return nil
	}

	stale := sample
	stale.Source = domain.SourceStaleCache
	a.tier(string(domain.SourceStaleCache), "hit")
	log.Warn().
		Str("symbol", symbol).
		Dur("age", time.Since(insertedAt)).
		Msg("Serving stale cached price, all live tiers failed")
	return &stale
}

// accept runs the bounds check and, on success, caches the sample and
// fans it out to the snapshot sinks. A rejected sample is discarded and
// the chain continues.
func (a *Aggregator) accept(symbol string, sample domain.PriceSample, tierName string) *domain.PriceSample {
	if !a.validator.Validate(symbol, sample.Value) {
		a.tier(tierName, "rejected")
		log.Warn().
			Str("symbol", symbol).
			Float64("value", sample.Value).
			Str("source", tierName).
			Msg("Fetched price failed validation, discarding")
		return nil
	}

	a.cache.Store(sample)
	a.tier(tierName, "hit")
	a.persist(sample)
	return &sample
}

func (a *Aggregator) persist(sample domain.PriceSample) {
	for _, sink := range a.sinks {
		go func(s SnapshotSink) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Save(ctx, sample); err != nil {
				log.Debug().Err(err).Str("symbol", sample.Symbol).Msg("Snapshot sink write failed")
			}
		}(sink)
	}
}

func (a *Aggregator) tier(source, outcome string) {
	if a.metrics != nil {
		a.metrics.TierResults.WithLabelValues(source, outcome).Inc()
	}
}

func (a *Aggregator) gaugeBudget() {
	if a.metrics != nil && a.budget != nil {
		a.metrics.BudgetUtilization.Set(a.budget.Utilization())
	}
}

func (a *Aggregator) gaugeAssets() {
	if a.metrics != nil {
		a.metrics.TrackedAssets.Set(float64(len(a.registry.Symbols())))
	}
}
