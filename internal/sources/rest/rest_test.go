package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinoracle/pricecore/internal/domain"
)

func testAsset() domain.Asset {
	return domain.Asset{
		Symbol:     "ETH",
		Decimals:   18,
		Bounds:     domain.Bounds{Min: 100, Max: 100000},
		ProviderID: "ethereum",
	}
}

func TestSource_GetPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		fmt.Fprint(w, `{"ethereum":{"usd":3215.47}}`)
	}))
	defer server.Close()

	src := New(server.URL, time.Second)
	sample, err := src.GetPrice(context.Background(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, 3215.47, sample.Value)
	assert.Equal(t, domain.SourceREST, sample.Source)
	assert.Equal(t, "ETH", sample.Symbol)
}

func TestSource_GetPrice_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := New(server.URL, time.Second)
	_, err := src.GetPrice(context.Background(), testAsset())
	require.Error(t, err)
}

func TestSource_GetPrice_RateLimitedUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := New(server.URL, time.Second)
	_, err := src.GetPrice(context.Background(), testAsset())
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSource_GetPrice_MissingField(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing_provider_id", `{"bitcoin":{"usd":64000}}`},
		{"missing_usd_quote", `{"ethereum":{"eur":2990.1}}`},
		{"not_json", `<html>rate limited</html>`},
		{"empty_object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			src := New(server.URL, time.Second)
			_, err := src.GetPrice(context.Background(), testAsset())
			require.Error(t, err, "missing fields are a decode failure, not a zero price")
		})
	}
}

func TestSource_GetPrice_NoProviderID(t *testing.T) {
	asset := testAsset()
	asset.ProviderID = ""

	src := New("http://unused.invalid", time.Second)
	_, err := src.GetPrice(context.Background(), asset)
	require.Error(t, err)
}

func TestSource_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src := New(server.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, err := src.GetPrice(context.Background(), testAsset())
		require.Error(t, err)
	}

	// Circuit is open now: the request fails fast without reaching the server.
	_, err := src.GetPrice(context.Background(), testAsset())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
