package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/alpha-starter/backend/internal/db/migrations"
	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, conn *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, conn, dir, opts...)
}

func gooseDialect(d Dialect) (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
}

// Migrate applies the embedded migrations to the store's database.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dialect, err := gooseDialect(s.dialect)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.conn, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
