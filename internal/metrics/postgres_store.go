package metrics

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/routegate/gateway/pkg/models"
)

// PostgresStore is the optional durable persistence port (§10.5): selected
// when DATABASE_URL is set, it gives deployments that prefer a SQL store
// for metric records over the file-backed default that substrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the given DSN and ensures the metric_records
// table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS metric_records (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			bucket TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			payload JSONB NOT NULL
		)
	`)
	return err
}

// SaveRecord persists one metric record, storing the full record as JSONB
// alongside a handful of indexable columns for warehouse-style querying.
func (s *PostgresStore) SaveRecord(ctx context.Context, r models.MetricRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO metric_records (request_id, recorded_at, bucket, provider, model, success, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.RequestID, r.Timestamp, r.Bucket, r.Provider, r.Model, r.Success, payload)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
