package service

import (
	"context"
	"errors"
	"strings"

	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/alpha-starter/backend/internal/security"
)

const bearerPrefix = "bearer "

// Guard resolves a bearer header to a user. It is read-only.
type Guard struct {
	users  db.Repository
	codec  *security.TokenCodec
	logger logging.Logger
}

func NewGuard(users db.Repository, codec *security.TokenCodec, opts ...Option) *Guard {
	o := buildOptions(opts)
	return &Guard{
		users:  users,
		codec:  codec,
		logger: o.logger.With("module", "guard"),
	}
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrUnauthorized
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// Authenticate collapses every failure into ErrUnauthorized.
func (g *Guard) Authenticate(ctx context.Context, header string) (*model.AuthUser, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, err := g.codec.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := g.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			g.logger.Error(ctx, "resolve token subject", "error", err)
		}
		return nil, ErrUnauthorized
	}

	return user.AuthUser(), nil
}
