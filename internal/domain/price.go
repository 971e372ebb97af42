package domain

import "time"

// Source identifies how a price sample was obtained. The aggregator's
// fallback chain is ordered by trust: onchain > rest > stream > stale_cache.
type Source string

const (
	SourceOnChain    Source = "onchain"
	SourceREST       Source = "rest"
	SourceStream     Source = "stream"
	SourceStaleCache Source = "stale_cache"
)

// PriceSample is a single observed price with provenance. Immutable once
// constructed; producers build a new sample rather than mutating one.
type PriceSample struct {
	Symbol     string    `json:"symbol"`
	Value      float64   `json:"value"`
	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// Age returns how long ago the sample was observed.
func (s PriceSample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}
