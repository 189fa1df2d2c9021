// Package datastore provides the data sources jobs read rows from
package datastore

import (
	"context"
	"fmt"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/storage"
)

// Datastore types
const (
	TypeMemory   = "memory"
	TypeCSV      = "csv"
	TypeSQLite   = storage.TypeSQLite
	TypePostgres = storage.TypePostgres
)

// Source is a data source that holds resources until closed
type Source interface {
	core.DataSource
	Close() error
}

// Open creates the data source of the given type. dsn is a directory or
// file for csv and a connection string for sqlite and postgres.
func Open(ctx context.Context, name, typ, dsn string) (Source, error) {
	switch typ {
	case TypeCSV:
		return NewCSV(name, dsn, CSVOptions{})
	case TypeSQLite, TypePostgres:
		db, err := storage.Open(ctx, name, typ, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQL(db), nil
	case TypeMemory:
		return NewMemory(name), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported datastore type: %s", typ))
	}
}

// columnIndex maps requested columns to their position in available;
// unknown columns map to -1 and read as nil
func columnIndex(available, requested []string) []int {
	pos := make(map[string]int, len(available))
	for i, c := range available {
		pos[c] = i
	}
	idx := make([]int, len(requested))
	for i, c := range requested {
		j, ok := pos[c]
		if !ok {
			j = -1
		}
		idx[i] = j
	}
	return idx
}
