package registry

import (
	"math"

	"github.com/coinoracle/pricecore/internal/domain"
)

// Validator is the bounds check applied to every fetched price before it
// may be cached or served. Stateless; the band comes from the asset's
// registered metadata.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator backed by the given registry.
func NewValidator(r *Registry) *Validator {
	return &Validator{registry: r}
}

// Validate reports whether value is a plausible price for symbol.
// Unknown symbols, NaN, infinities, non-positive values, and values
// outside the registered [min, max] band all fail.
func (v *Validator) Validate(symbol string, value float64) bool {
	asset, ok := v.registry.Lookup(symbol)
	if !ok {
		return false
	}
	return ValidateBounds(asset.Bounds, value)
}

// ValidateBounds applies the plausibility check against an explicit band.
func ValidateBounds(b domain.Bounds, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if value <= 0 {
		return false
	}
	return value >= b.Min && value <= b.Max
}
