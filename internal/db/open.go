package db

import (
	"context"
	"fmt"
)

const (
	AdapterPostgres = "postgres"
	AdapterSQLite   = "sqlite"
	AdapterMemory   = "memory"
)

type Options struct {
	Adapter    string
	Postgres   PostgresConfig
	SQLiteFile string
}

// Open selects the storage engine and, for SQL engines, applies migrations.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store *SQLStore
		err   error
	)
	switch opts.Adapter {
	case AdapterMemory:
		return NewMemoryStore(), nil
	case AdapterSQLite:
		store, err = OpenSQLite(ctx, opts.SQLiteFile)
	case AdapterPostgres, "":
		store, err = OpenPostgres(ctx, opts.Postgres)
	default:
		return nil, fmt.Errorf("unknown DB_ADAPTER %q", opts.Adapter)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
