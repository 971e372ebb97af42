package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinoracle/pricecore/internal/domain"
)

func newMockRepo(t *testing.T) (*SnapshotRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSnapshotRepo(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestSnapshotRepo_Save(t *testing.T) {
	repo, mock := newMockRepo(t)

	observed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO price_snapshots").
		WithArgs("ETH", 3210.5, "onchain", observed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), domain.PriceSample{
		Symbol:     "ETH",
		Value:      3210.5,
		Source:     domain.SourceOnChain,
		ObservedAt: observed,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepo_Recent(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"symbol", "price", "source", "observed_at"}).
		AddRow("ETH", 3211.0, "onchain", now).
		AddRow("ETH", 3210.5, "rest", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT symbol, price, source, observed_at").
		WithArgs("ETH", 2).
		WillReturnRows(rows)

	samples, err := repo.Recent(context.Background(), "ETH", 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 3211.0, samples[0].Value)
	assert.Equal(t, domain.SourceOnChain, samples[0].Source)
	assert.Equal(t, domain.SourceREST, samples[1].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepo_SaveError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO price_snapshots").
		WillReturnError(assert.AnError)

	err := repo.Save(context.Background(), domain.PriceSample{
		Symbol:     "ETH",
		Value:      3210.5,
		Source:     domain.SourceREST,
		ObservedAt: time.Now(),
	})
	require.Error(t, err)
}
