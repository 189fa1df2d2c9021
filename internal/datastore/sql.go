package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

// SQL serves the tables of a sqlite or postgres database
type SQL struct {
	db *core.Database
}

// NewSQL reads tables from db. Closing the source closes db.
func NewSQL(db *core.Database) *SQL {
	return &SQL{db: db}
}

// Database returns the underlying connection
func (s *SQL) Database() *core.Database { return s.db }

func (s *SQL) Name() string { return s.db.Name }

func (s *SQL) Columns(ctx context.Context, table string) ([]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT 0", s.db.Dialect.QuoteIdent(table))
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.DataSourceError("cannot read columns", err).WithContext("table", table)
	}
	defer rows.Close()
	return rows.Columns()
}

func (s *SQL) ExpectedRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.db.Dialect.QuoteIdent(table))
	if err := s.db.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return core.UnknownRowCount, errors.DataSourceError("cannot count rows", err).WithContext("table", table)
	}
	return n, nil
}

func (s *SQL) Open(ctx context.Context, table string, columns []string) (core.RowIterator, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.db.Dialect.QuoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), s.db.Dialect.QuoteIdent(table))
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.DataSourceError("cannot query table", err).WithContext("table", table)
	}

	it := &sqlIterator{rows: rows, cur: make([]interface{}, len(columns)), ptrs: make([]interface{}, len(columns))}
	for i := range it.cur {
		it.ptrs[i] = &it.cur[i]
	}
	return it, nil
}

func (s *SQL) Close() error { return s.db.DB.Close() }

type sqlIterator struct {
	rows *sql.Rows
	cur  []interface{}
	ptrs []interface{}
	err  error
}

func (it *sqlIterator) Next(ctx context.Context) bool {
	if it.err != nil || ctx.Err() != nil {
		return false
	}
	if !it.rows.Next() {
		return false
	}
	if err := it.rows.Scan(it.ptrs...); err != nil {
		it.err = err
		return false
	}
	for i, v := range it.cur {
		it.cur[i] = common.NormalizeValue(v)
	}
	return true
}

func (it *sqlIterator) Values() []interface{} { return it.cur }

func (it *sqlIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *sqlIterator) Close() error { return it.rows.Close() }
