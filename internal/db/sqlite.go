package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

// OpenSQLite opens (creating if needed) a SQLite database file.
// A single connection serializes writers so transactions never see SQLITE_BUSY.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return NewSQLStore(conn, DialectSQLite), nil
}
