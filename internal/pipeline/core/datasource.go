package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UnknownRowCount is returned by ExpectedRows when a source cannot tell
const UnknownRowCount int64 = -1

// DataSource provides rows per table together with column metadata
type DataSource interface {
	Name() string
	Columns(ctx context.Context, table string) ([]string, error)
	ExpectedRows(ctx context.Context, table string) (int64, error)
	Open(ctx context.Context, table string, columns []string) (RowIterator, error)
}

// RowIterator streams the rows of one table. Values is aligned with the
// columns passed to Open and is only valid until the next call to Next.
type RowIterator interface {
	Next(ctx context.Context) bool
	Values() []interface{}
	Err() error
	Close() error
}

// SourceColumn splits a qualified source column reference "table.column".
// The table part may itself contain dots (schema.table).
func SourceColumn(ref string) (table, column string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// QualifiedColumn builds the reference used for a source column in a job
func QualifiedColumn(table, column string) string {
	return table + "." + column
}

// Cache is the lookup cache made available to components
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// Dialect tells components how to write SQL for a database
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent quotes a possibly schema-qualified identifier
func (d Dialect) QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// Database is a named SQL connection components may query or write to
type Database struct {
	Name    string
	Dialect Dialect
	DB      *sql.DB
}
