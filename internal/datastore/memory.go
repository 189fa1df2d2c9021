package datastore

import (
	"context"
	"fmt"
	"sync"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
)

type memoryTable struct {
	columns []string
	rows    [][]interface{}
}

// Memory serves tables held in memory. Tables may be added while no job
// reads them.
type Memory struct {
	name string

	mu     sync.RWMutex
	tables map[string]*memoryTable
}

// NewMemory creates an empty in-memory data source
func NewMemory(name string) *Memory {
	if name == "" {
		name = TypeMemory
	}
	return &Memory{name: name, tables: make(map[string]*memoryTable)}
}

// AddTable adds or replaces a table. Every row must have one value per
// column.
func (m *Memory) AddTable(name string, columns []string, rows [][]interface{}) error {
	for i, r := range rows {
		if len(r) != len(columns) {
			return errors.ValidationError(fmt.Sprintf("row %d of table '%s' has %d values for %d columns", i+1, name, len(r), len(columns)))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &memoryTable{columns: append([]string(nil), columns...), rows: rows}
	return nil
}

// AddRecords adds a table built from records, using columns for the order
func (m *Memory) AddRecords(name string, columns []string, records []map[string]interface{}) error {
	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return m.AddTable(name, columns, rows)
}

func (m *Memory) table(name string) (*memoryTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("table '%s'", name))
	}
	return t, nil
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Columns(_ context.Context, table string) ([]string, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	return t.columns, nil
}

func (m *Memory) ExpectedRows(_ context.Context, table string) (int64, error) {
	t, err := m.table(table)
	if err != nil {
		return core.UnknownRowCount, err
	}
	return int64(len(t.rows)), nil
}

func (m *Memory) Open(_ context.Context, table string, columns []string) (core.RowIterator, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	return &memoryIterator{
		rows: t.rows,
		idx:  columnIndex(t.columns, columns),
		cur:  make([]interface{}, len(columns)),
		pos:  -1,
	}, nil
}

func (m *Memory) Close() error { return nil }

type memoryIterator struct {
	rows [][]interface{}
	idx  []int
	cur  []interface{}
	pos  int
	err  error
}

func (it *memoryIterator) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	it.pos++
	if it.pos >= len(it.rows) {
		return false
	}
	row := it.rows[it.pos]
	for i, j := range it.idx {
		if j < 0 {
			it.cur[i] = nil
		} else {
			it.cur[i] = row[j]
		}
	}
	return true
}

func (it *memoryIterator) Values() []interface{} { return it.cur }
func (it *memoryIterator) Err() error            { return it.err }
func (it *memoryIterator) Close() error          { return nil }
