package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
)

// TableWriter inserts rows into one table through a prepared statement.
// It is safe for concurrent use.
type TableWriter struct {
	db      *core.Database
	table   string
	columns []string
	stmt    *sql.Stmt
	written atomic.Int64
}

// NewTableWriter prepares the insert of columns into table
func NewTableWriter(ctx context.Context, db *core.Database, table string, columns []string) (*TableWriter, error) {
	if len(columns) == 0 {
		return nil, errors.ValidationError("at least one column is required")
	}

	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = db.Dialect.QuoteIdent(c)
		params[i] = db.Dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		db.Dialect.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(params, ", "))

	stmt, err := db.DB.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError("failed to prepare insert", err).WithContext("table", table)
	}
	return &TableWriter{db: db, table: table, columns: columns, stmt: stmt}, nil
}

// Write inserts one row; values are aligned with the writer's columns
func (w *TableWriter) Write(ctx context.Context, values []interface{}) error {
	if len(values) != len(w.columns) {
		return errors.ValidationError(fmt.Sprintf("%d values for %d columns", len(values), len(w.columns)))
	}
	if _, err := w.stmt.ExecContext(ctx, values...); err != nil {
		return errors.StorageError("failed to insert row", err).WithContext("table", w.table)
	}
	w.written.Add(1)
	return nil
}

// Written returns the number of rows inserted so far
func (w *TableWriter) Written() int64 { return w.written.Load() }

// Table returns the target table
func (w *TableWriter) Table() string { return w.table }

func (w *TableWriter) Close() error {
	return w.stmt.Close()
}
