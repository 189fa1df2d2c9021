// Package sqlite stores rejected rows in a SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"analysis-engine/internal/pipeline/core"
)

type RejectStore struct {
	db  *sql.DB
	dsn string
}

// NewRejectStore opens path and creates the rejected_rows table
func NewRejectStore(ctx context.Context, path string) (*RejectStore, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &RejectStore{db: db, dsn: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *RejectStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rejected_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			source_table TEXT NOT NULL,
			row_id INTEGER NOT NULL,
			row_values TEXT NOT NULL,
			error TEXT NOT NULL,
			rejected_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejected_rows_execution ON rejected_rows(execution_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rejected_rows (execution_id, node_id, source_table, row_id, row_values, error, rejected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ExecutionID, row.NodeID, row.Table, row.RowID, string(values), row.Error, row.RejectedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store rejected row: %w", err)
	}
	return nil
}

// Location names the database file and table holding the rows
func (s *RejectStore) Location() string {
	return "sqlite:" + s.dsn + "#rejected_rows"
}

// List returns the rejected rows of an execution in capture order
func (s *RejectStore) List(ctx context.Context, executionID string) ([]core.RejectedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, node_id, source_table, row_id, row_values, error, rejected_at
		 FROM rejected_rows WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected rows: %w", err)
	}
	defer rows.Close()

	var out []core.RejectedRow
	for rows.Next() {
		var r core.RejectedRow
		var values string
		var at time.Time
		if err := rows.Scan(&r.ExecutionID, &r.NodeID, &r.Table, &r.RowID, &values, &r.Error, &at); err != nil {
			return nil, fmt.Errorf("failed to scan rejected row: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, fmt.Errorf("failed to decode row values: %w", err)
		}
		r.RejectedAt = at
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RejectStore) Close() error {
	return s.db.Close()
}
