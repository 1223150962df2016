// Package db persists users, refresh tokens and one-time tokens.
//
// Two engines share one SQL implementation (Postgres through pgx, SQLite
// through modernc) and a MemoryStore covers tests and DB_ADAPTER=memory.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/alpha-starter/backend/internal/model"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate record")
	// ErrUnknownKind rejects one-time tokens whose kind no workflow consumes.
	ErrUnknownKind = errors.New("unknown token kind")
)

// Repository is the record-level contract shared by every engine.
type Repository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error

	CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error

	CreateOneTimeToken(ctx context.Context, token *model.OneTimeToken) error
	GetOneTimeTokenByHash(ctx context.Context, kind model.TokenKind, tokenHash string) (*model.OneTimeToken, error)
	// MarkOneTimeTokenUsed flips used from false to true. It reports false
	// when the token was already used or does not exist.
	MarkOneTimeTokenUsed(ctx context.Context, id string) (bool, error)
}

// Store is a Repository that can also run a unit of work atomically.
// Inside fn only the repo argument may be used.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// DBTX is the subset of database/sql used by the SQL repository.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx commits on success and rolls back on error or panic. Panics are rethrown.
func withTx(ctx context.Context, conn *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
