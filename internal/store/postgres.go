// Package store persists accepted price samples: postgres keeps the
// full snapshot history, redis keeps only the latest sample per symbol
// for warm restarts. Both are optional; the engine runs without either.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/coinoracle/pricecore/internal/domain"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
	id BIGSERIAL PRIMARY KEY,
	symbol TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_price_snapshots_symbol_observed
	ON price_snapshots (symbol, observed_at DESC);`

// SnapshotRepo is the postgres-backed history of accepted samples.
type SnapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo wraps an open connection. timeout bounds each query.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) *SnapshotRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SnapshotRepo{db: db, timeout: timeout}
}

// OpenSnapshotRepo connects to postgres and ensures the schema exists.
func OpenSnapshotRepo(dsn string, timeout time.Duration) (*SnapshotRepo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	repo := NewSnapshotRepo(db, timeout)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the snapshot table if missing.
func (r *SnapshotRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("failed to ensure snapshot schema: %w", err)
	}
	return nil
}

// Save inserts one accepted sample.
func (r *SnapshotRepo) Save(ctx context.Context, sample domain.PriceSample) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO price_snapshots (symbol, price, source, observed_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query,
		sample.Symbol, sample.Value, string(sample.Source), sample.ObservedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert snapshot for %s: %w", sample.Symbol, err)
	}
	return nil
}

type snapshotRow struct {
	Symbol     string    `db:"symbol"`
	Price      float64   `db:"price"`
	Source     string    `db:"source"`
	ObservedAt time.Time `db:"observed_at"`
}

// Recent returns the latest n samples for a symbol, newest first.
func (r *SnapshotRepo) Recent(ctx context.Context, symbol string, n int) ([]domain.PriceSample, error) {
	if n <= 0 {
		n = 100
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, price, source, observed_at
		FROM price_snapshots
		WHERE symbol = $1
		ORDER BY observed_at DESC
		LIMIT $2`

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, symbol, n); err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", symbol, err)
	}

	samples := make([]domain.PriceSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, domain.PriceSample{
			Symbol:     row.Symbol,
			Value:      row.Price,
			Source:     domain.Source(row.Source),
			ObservedAt: row.ObservedAt,
		})
	}
	return samples, nil
}

// Close releases the underlying connection pool.
func (r *SnapshotRepo) Close() error {
	return r.db.Close()
}
