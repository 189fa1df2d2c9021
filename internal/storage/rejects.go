package storage

import (
	"context"
	"fmt"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/storage/postgres"
	"analysis-engine/internal/storage/sqlite"
)

// RejectStore is a reject sink that can be read back and closed
type RejectStore interface {
	core.RejectSink
	List(ctx context.Context, executionID string) ([]core.RejectedRow, error)
	Close() error
}

// NewRejectStore opens the reject store of the given type
func NewRejectStore(ctx context.Context, typ, dsn string) (RejectStore, error) {
	switch typ {
	case "", TypeMemory:
		return &memoryStore{core.NewMemoryRejectSink()}, nil
	case TypeSQLite:
		return sqlite.NewRejectStore(ctx, dsn)
	case TypePostgres:
		return postgres.NewRejectStore(ctx, dsn)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported reject store type: %s", typ))
	}
}

type memoryStore struct {
	*core.MemoryRejectSink
}

func (m *memoryStore) List(_ context.Context, executionID string) ([]core.RejectedRow, error) {
	return m.Rows(executionID), nil
}

func (m *memoryStore) Close() error { return nil }
