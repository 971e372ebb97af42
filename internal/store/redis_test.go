package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinoracle/pricecore/internal/domain"
)

func TestLastPriceStore_SaveAndLoad(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLastPriceStore(client, time.Hour)

	sample := domain.PriceSample{
		Symbol:     "ETH",
		Value:      3210.5,
		Source:     domain.SourceOnChain,
		ObservedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(sample)
	require.NoError(t, err)

	mock.ExpectSet("pricecore:last:ETH", payload, time.Hour).SetVal("OK")
	require.NoError(t, store.Save(context.Background(), sample))

	mock.ExpectGet("pricecore:last:ETH").SetVal(string(payload))
	got, err := store.Load(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, sample.Value, got.Value)
	assert.Equal(t, sample.Source, got.Source)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastPriceStore_LoadMissing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLastPriceStore(client, time.Hour)

	mock.ExpectGet("pricecore:last:BTC").RedisNil()

	_, err := store.Load(context.Background(), "BTC")
	require.Error(t, err)
}

func TestLastPriceStore_LoadCorrupt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLastPriceStore(client, time.Hour)

	mock.ExpectGet("pricecore:last:ETH").SetVal("not-json")

	_, err := store.Load(context.Background(), "ETH")
	require.Error(t, err)
}
