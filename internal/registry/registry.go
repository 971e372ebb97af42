// Package registry owns the set of tracked assets and their metadata.
// Writes are infrequent (custom token add/remove); reads come from the
// aggregator and every stream connection, so all access is lock-guarded.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coinoracle/pricecore/internal/domain"
)

// Registry is the authoritative store of tracked assets.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		assets: make(map[string]domain.Asset),
	}
}

// Register adds an asset. Metadata is validated up front: a failed
// registration leaves no trace of the symbol. Re-registering a symbol
// replaces its metadata atomically.
func (r *Registry) Register(asset domain.Asset) error {
	if asset.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidMetadata)
	}
	if asset.Decimals <= 0 {
		return fmt.Errorf("%w: decimals missing for %s", domain.ErrInvalidMetadata, asset.Symbol)
	}
	if asset.Bounds.Min < 0 || asset.Bounds.Max < 0 {
		return fmt.Errorf("%w: negative bounds for %s", domain.ErrInvalidMetadata, asset.Symbol)
	}
	if asset.Bounds.Min >= asset.Bounds.Max {
		return fmt.Errorf("%w: bounds min %.8f >= max %.8f for %s",
			domain.ErrInvalidMetadata, asset.Bounds.Min, asset.Bounds.Max, asset.Symbol)
	}
	if asset.OracleScale == 0 {
		asset.OracleScale = domain.DefaultOracleScale
	}

	r.mu.Lock()
	r.assets[asset.Symbol] = asset
	r.mu.Unlock()

	log.Info().
		Str("symbol", asset.Symbol).
		Int("decimals", asset.Decimals).
		Float64("min", asset.Bounds.Min).
		Float64("max", asset.Bounds.Max).
		Bool("has_feed", asset.HasFeed()).
		Msg("Asset registered")
	return nil
}

// Deregister removes an asset by symbol.
func (r *Registry) Deregister(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[symbol]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, symbol)
	}
	delete(r.assets, symbol)
	return nil
}

// Lookup returns the asset for a symbol.
func (r *Registry) Lookup(symbol string) (domain.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, ok := r.assets[symbol]
	return asset, ok
}

// Symbols returns all registered symbols.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.assets))
	for s := range r.assets {
		symbols = append(symbols, s)
	}
	return symbols
}
