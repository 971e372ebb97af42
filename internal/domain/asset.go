package domain

// DefaultOracleScale is the fixed-point scale used by the supported
// price-feed contracts (answers are integers scaled by 10^8). This is
// independent of the asset's own decimals and must never be conflated
// with them.
const DefaultOracleScale = 8

// Bounds is the plausible price band for an asset. Samples outside the
// band are rejected before they reach the cache.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Asset is a tracked token and its metadata. Owned by the registry;
// everything else references assets by symbol.
type Asset struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	Decimals    int    `json:"decimals" yaml:"decimals"`
	Bounds      Bounds `json:"bounds" yaml:"bounds"`
	FeedAddress string `json:"feed_address,omitempty" yaml:"feed_address"` // on-chain price feed contract, optional
	ProviderID  string `json:"provider_id,omitempty" yaml:"provider_id"`   // REST provider identifier, optional
	OracleScale int    `json:"oracle_scale,omitempty" yaml:"oracle_scale"` // fixed-point scale of the feed, defaults to 8
}

// HasFeed reports whether the asset has an on-chain price feed configured.
func (a Asset) HasFeed() bool {
	return a.FeedAddress != ""
}
