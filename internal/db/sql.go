package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alpha-starter/backend/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements Store over database/sql for both engines.
// Queries are written with '?' placeholders and rebound for Postgres.
type SQLStore struct {
	conn    *sql.DB
	dialect Dialect
	closers []func()
	sqlRepo
}

func NewSQLStore(conn *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		conn:    conn,
		dialect: dialect,
		sqlRepo: sqlRepo{db: conn, dialect: dialect},
	}
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return withTx(ctx, s.conn, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &sqlRepo{db: tx, dialect: s.dialect})
	})
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	err := s.conn.Close()
	for _, closeFn := range s.closers {
		closeFn()
	}
	return err
}

type sqlRepo struct {
	db      DBTX
	dialect Dialect
}

func (r *sqlRepo) q(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	return rebind(query)
}

// rebind rewrites '?' placeholders into Postgres positional parameters.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func writeErr(op string, err error) error {
	if isDuplicate(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func readErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const userColumns = `id, email, password_hash, email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var created, updated int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified, &created, &updated); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func (r *sqlRepo) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.q(query),
		user.ID,
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		return writeErr("insert user", err)
	}
	return nil
}

func (r *sqlRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, r.q(query), email))
	if err != nil {
		return nil, readErr("select user by email", err)
	}
	return user, nil
}

func (r *sqlRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, r.q(query), id))
	if err != nil {
		return nil, readErr("select user by id", err)
	}
	return user, nil
}

func (r *sqlRepo) UpdateUser(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET email = ?, password_hash = ?, email_verified = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, r.q(query),
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		toMillis(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return writeErr("update user", err)
	}
	return requireRow("update user", res)
}

// DeleteUser removes the user and every token row it owns.
func (r *sqlRepo) DeleteUser(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM refresh_tokens WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM one_time_tokens WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("delete one-time tokens: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow("delete user", res)
}

func (r *sqlRepo) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.q(query),
		token.ID,
		token.UserID,
		token.TokenHash,
		toMillis(token.ExpiresAt),
		token.Revoked,
		toMillis(token.CreatedAt),
	)
	if err != nil {
		return writeErr("insert refresh token", err)
	}
	return nil
}

func (r *sqlRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = ?
	`
	var (
		token            model.RefreshToken
		expires, created int64
	)
	err := r.db.QueryRowContext(ctx, r.q(query), tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&expires,
		&token.Revoked,
		&created,
	)
	if err != nil {
		return nil, readErr("select refresh token", err)
	}
	token.ExpiresAt = fromMillis(expires)
	token.CreatedAt = fromMillis(created)
	return &token, nil
}

func (r *sqlRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE refresh_tokens SET revoked = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return requireRow("revoke refresh token", res)
}

func (r *sqlRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	query := `UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND revoked = ?`
	if _, err := r.db.ExecContext(ctx, r.q(query), true, userID, false); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (r *sqlRepo) CreateOneTimeToken(ctx context.Context, token *model.OneTimeToken) error {
	if !token.Kind.Valid() {
		return fmt.Errorf("insert one-time token: %w %q", ErrUnknownKind, token.Kind)
	}
	query := `
		INSERT INTO one_time_tokens (id, user_id, kind, token_hash, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.q(query),
		token.ID,
		token.UserID,
		string(token.Kind),
		token.TokenHash,
		toMillis(token.ExpiresAt),
		token.Used,
		toMillis(token.CreatedAt),
	)
	if err != nil {
		return writeErr("insert one-time token", err)
	}
	return nil
}

func (r *sqlRepo) GetOneTimeTokenByHash(ctx context.Context, kind model.TokenKind, tokenHash string) (*model.OneTimeToken, error) {
	query := `
		SELECT id, user_id, kind, token_hash, expires_at, used, created_at
		FROM one_time_tokens
		WHERE kind = ? AND token_hash = ?
	`
	var (
		token            model.OneTimeToken
		kindValue        string
		expires, created int64
	)
	err := r.db.QueryRowContext(ctx, r.q(query), string(kind), tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&kindValue,
		&token.TokenHash,
		&expires,
		&token.Used,
		&created,
	)
	if err != nil {
		return nil, readErr("select one-time token", err)
	}
	token.Kind = model.TokenKind(kindValue)
	token.ExpiresAt = fromMillis(expires)
	token.CreatedAt = fromMillis(created)
	return &token, nil
}

func (r *sqlRepo) MarkOneTimeTokenUsed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE one_time_tokens SET used = ? WHERE id = ? AND used = ?`
	res, err := r.db.ExecContext(ctx, r.q(query), true, id, false)
	if err != nil {
		return false, fmt.Errorf("mark one-time token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark one-time token used: %w", err)
	}
	return n == 1, nil
}
