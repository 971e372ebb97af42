// Package metrics exposes Prometheus collectors for the aggregation
// engine: cache effectiveness, fallback tier outcomes, retry pressure,
// stream connection churn, and budget headroom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all collectors and the underlying Prometheus registry
// served on the ops listener.
type Registry struct {
	Registry *prometheus.Registry

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// TierResults counts fallback tier attempts by source and outcome
	// (hit, miss, rejected, rate_limited, error).
	TierResults *prometheus.CounterVec

	OnChainRetries  *prometheus.CounterVec
	StreamMessages  *prometheus.CounterVec
	StreamReconnects *prometheus.CounterVec

	BudgetUtilization prometheus.Gauge
	TrackedAssets     prometheus.Gauge
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registry: reg,

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricecore_cache_hits_total",
			Help: "Total price cache hits on the fresh path",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricecore_cache_misses_total",
			Help: "Total price cache misses on the fresh path",
		}),
		TierResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecore_tier_results_total",
			Help: "Fallback tier attempts by source and outcome",
		}, []string{"source", "outcome"}),
		OnChainRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecore_onchain_retries_total",
			Help: "Failed on-chain read attempts by symbol",
		}, []string{"symbol"}),
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecore_stream_messages_total",
			Help: "Inbound stream messages by venue and outcome (parsed, dropped)",
		}, []string{"venue", "outcome"}),
		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecore_stream_reconnects_total",
			Help: "Stream reconnect attempts by venue",
		}, []string{"venue"}),
		BudgetUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricecore_onchain_budget_utilization",
			Help: "Spent fraction of the on-chain call budget window (0..1)",
		}),
		TrackedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricecore_tracked_assets",
			Help: "Number of registered assets",
		}),
	}

	reg.MustRegister(
		r.CacheHits, r.CacheMisses, r.TierResults, r.OnChainRetries,
		r.StreamMessages, r.StreamReconnects, r.BudgetUtilization, r.TrackedAssets,
	)
	return r
}
