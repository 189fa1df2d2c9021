// Package storage opens the SQL databases jobs read from and write to, and
// persists rejected rows
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
)

// Database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// driverName maps a database type to its database/sql driver
func driverName(typ string) (string, core.Dialect, error) {
	switch typ {
	case TypeSQLite:
		return "sqlite3", core.DialectSQLite, nil
	case TypePostgres:
		return "pgx", core.DialectPostgres, nil
	default:
		return "", "", errors.ConfigError(fmt.Sprintf("unsupported database type: %s", typ))
	}
}

// Open connects to a sqlite or postgres database and pings it
func Open(ctx context.Context, name, typ, dsn string) (*core.Database, error) {
	driver, dialect, err := driverName(typ)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.ConfigError(fmt.Sprintf("database '%s' needs a DSN", name))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.StorageError("failed to open database", err).WithContext("database", name)
	}
	if typ == TypeSQLite {
		// One writer at a time; also keeps ":memory:" to a single database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.StorageError("failed to ping database", err).WithContext("database", name)
	}

	return &core.Database{Name: name, Dialect: dialect, DB: db}, nil
}
