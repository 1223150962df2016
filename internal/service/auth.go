package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/alpha-starter/backend/internal/config"
	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/alpha-starter/backend/internal/security"
	"github.com/alpha-starter/backend/internal/throttle"
	"github.com/google/uuid"
)

const (
	refreshCookieName = "alpha_refresh"
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
	maxEmailLength    = 254
)

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// TokenPair is what a successful register, login or refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type AuthService struct {
	store                  db.Store
	codec                  *security.TokenCodec
	hasher                 security.PasswordHasher
	limiter                throttle.Limiter
	accessTTL              time.Duration
	refreshTTL             time.Duration
	allowSignup            bool
	revokeOnPasswordChange bool
	cookieCfg              CookieConfig
	dummyHash              string
	onRegister             func(ctx context.Context, user *model.User)
	now                    func() time.Time
	logger                 logging.Logger
}

func NewAuthService(
	store db.Store,
	codec *security.TokenCodec,
	hasher security.PasswordHasher,
	limiter throttle.Limiter,
	cfg config.AuthConfig,
	opts ...Option,
) (*AuthService, error) {
	if store == nil || codec == nil || hasher == nil || limiter == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrMisconfigured)
	}
	if cfg.RefreshExpireDays <= 0 {
		return nil, fmt.Errorf("%w: invalid REFRESH_EXPIRE_DAYS", ErrMisconfigured)
	}

	cookieSameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SAMESITE", ErrMisconfigured)
	}
	if cookieSameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		return nil, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	dummyHash, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	o := buildOptions(opts)
	return &AuthService{
		store:                  store,
		codec:                  codec,
		hasher:                 hasher,
		limiter:                limiter,
		accessTTL:              cfg.AccessTTL(),
		refreshTTL:             cfg.RefreshTTL(),
		allowSignup:            cfg.AllowSignup,
		revokeOnPasswordChange: cfg.RevokeSessionsOnPasswordChange,
		cookieCfg: CookieConfig{
			Name:     refreshCookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: cookieSameSite,
			MaxAge:   int(cfg.RefreshTTL().Seconds()),
		},
		dummyHash: dummyHash,
		now:       o.now,
		logger:    o.logger.With("module", "auth"),
	}, nil
}

// OnRegister installs a best-effort hook run after a successful registration.
func (s *AuthService) OnRegister(fn func(ctx context.Context, user *model.User)) {
	s.onRegister = fn
}

func (s *AuthService) AllowSignup() bool {
	return s.allowSignup
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	if !s.allowSignup {
		return nil, ErrForbidden
	}

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.onRegister != nil {
		s.onRegister(ctx, user)
	}
	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, clientAddr string) (*TokenPair, error) {
	if !s.limiter.Allow(clientAddr) {
		s.logger.Warn(ctx, "login throttled", "client", clientAddr)
		return nil, ErrRateLimited
	}

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user)
}

// Refresh mints a new access token. The presented refresh token is returned
// unchanged and stays valid until it expires or is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidToken
	}

	record, err := s.store.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.Revoked {
		return nil, ErrInvalidToken
	}
	if record.Expired(s.now()) {
		return nil, ErrExpired
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	accessToken, expiresIn, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// Logout never reports whether the token existed.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}

	record, err := s.store.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if record.Revoked {
		return nil
	}

	if err := s.store.RevokeRefreshToken(ctx, record.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, repo db.Repository) error {
		user, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrUnauthorized
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		if !s.hasher.Verify(currentPassword, user.PasswordHash) {
			return ErrInvalidCredentials
		}
		if err := validatePassword(newPassword); err != nil {
			return err
		}

		return s.setPassword(ctx, repo, user, newPassword)
	})
}

// setPassword replaces the hash and applies the session revocation policy.
func (s *AuthService) setPassword(ctx context.Context, repo db.Repository, user *model.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if s.revokeOnPasswordChange {
		if err := repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	s.logger.Info(ctx, "password changed", "user_id", user.ID, "sessions_revoked", s.revokeOnPasswordChange)
	return nil
}

// DeleteAccount removes the user and every token it owns after re-checking the password.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, repo db.Repository) error {
		user, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrUnauthorized
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		if !s.hasher.Verify(password, user.PasswordHash) {
			return ErrInvalidCredentials
		}

		if err := repo.DeleteUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		s.logger.Info(ctx, "account deleted", "user_id", user.ID)
		return nil
	})
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*TokenPair, error) {
	accessToken, expiresIn, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := security.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	record := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(refreshToken),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (s *AuthService) generateAccessToken(user *model.User) (string, int64, error) {
	ext := security.Extensions{"email_verified": user.EmailVerified}
	if err := security.ValidateExtensions(ext); err != nil {
		return "", 0, err
	}

	signed, err := s.codec.Issue(user.ID, s.accessTTL, ext)
	if err != nil {
		return "", 0, fmt.Errorf("issue access token: %w", err)
	}

	return signed, int64(s.accessTTL.Seconds()), nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength || strings.TrimSpace(email) != email {
		return ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidInput
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidInput
	}
	return nil
}

func parseSameSite(value string) (http.SameSite, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return http.SameSiteLaxMode, nil
	}
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, ErrInvalidInput
	}
}
