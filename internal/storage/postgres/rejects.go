// Package postgres stores rejected rows in PostgreSQL through a pgx pool
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"analysis-engine/internal/pipeline/core"
)

type RejectStore struct {
	pool     *pgxpool.Pool
	location string
}

// NewRejectStore connects to dsn and creates the rejected_rows table
func NewRejectStore(ctx context.Context, dsn string) (*RejectStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL connection string is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &RejectStore{pool: pool, location: location(cfg.ConnConfig.Host, cfg.ConnConfig.Database)}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func location(host, database string) string {
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + database, Fragment: "rejected_rows"}
	return u.String()
}

func (s *RejectStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rejected_rows (
			id BIGSERIAL PRIMARY KEY,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			source_table TEXT NOT NULL,
			row_id BIGINT NOT NULL,
			row_values JSONB NOT NULL,
			error TEXT NOT NULL,
			rejected_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejected_rows_execution ON rejected_rows(execution_id)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

func (s *RejectStore) Capture(ctx context.Context, row core.RejectedRow) error {
	values, err := json.Marshal(row.Values)
	if err != nil {
		return fmt.Errorf("failed to encode row values: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rejected_rows (execution_id, node_id, source_table, row_id, row_values, error, rejected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ExecutionID, row.NodeID, row.Table, row.RowID, values, row.Error, row.RejectedAt)
	if err != nil {
		return fmt.Errorf("failed to store rejected row: %w", err)
	}
	return nil
}

func (s *RejectStore) Location() string { return s.location }

// List returns the rejected rows of an execution in capture order
func (s *RejectStore) List(ctx context.Context, executionID string) ([]core.RejectedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT execution_id, node_id, source_table, row_id, row_values, error, rejected_at
		 FROM rejected_rows WHERE execution_id = $1 ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected rows: %w", err)
	}
	defer rows.Close()

	var out []core.RejectedRow
	for rows.Next() {
		var r core.RejectedRow
		var values []byte
		if err := rows.Scan(&r.ExecutionID, &r.NodeID, &r.Table, &r.RowID, &values, &r.Error, &r.RejectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rejected row: %w", err)
		}
		if err := json.Unmarshal(values, &r.Values); err != nil {
			return nil, fmt.Errorf("failed to decode row values: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RejectStore) Close() error {
	s.pool.Close()
	return nil
}
