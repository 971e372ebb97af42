package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CollectorsRegistered(t *testing.T) {
	r := NewRegistry()

	r.CacheHits.Inc()
	r.CacheHits.Inc()
	r.TierResults.WithLabelValues("onchain", "hit").Inc()
	r.StreamMessages.WithLabelValues("binance", "dropped").Inc()
	r.BudgetUtilization.Set(0.25)

	families, err := r.Registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	hits, ok := byName["pricecore_cache_hits_total"]
	require.True(t, ok)
	assert.Equal(t, 2.0, hits.GetMetric()[0].GetCounter().GetValue())

	tiers, ok := byName["pricecore_tier_results_total"]
	require.True(t, ok)
	require.Len(t, tiers.GetMetric(), 1)

	util, ok := byName["pricecore_onchain_budget_utilization"]
	require.True(t, ok)
	assert.Equal(t, 0.25, util.GetMetric()[0].GetGauge().GetValue())
}
