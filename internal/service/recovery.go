package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alpha-starter/backend/internal/config"
	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/alpha-starter/backend/internal/security"
	tmpl "github.com/alpha-starter/backend/internal/template"
	"github.com/google/uuid"
)

// flow is one single-use token lifecycle. Reset and verification differ only
// in kind, lifetime, message and effect.
type flow struct {
	kind     model.TokenKind
	ttl      time.Duration
	subject  string
	body     string
	linkPath string
	// skip reports users that should not receive a token, e.g. already verified.
	skip func(user *model.User) bool
}

// deliveryTimeout bounds one background send.
const deliveryTimeout = 30 * time.Second

// RecoveryService runs the password-reset and email-verification workflows.
// Messages are delivered in the background so a request for a known address
// takes as long as one for an unknown address.
type RecoveryService struct {
	store    db.Store
	auth     *AuthService
	notifier Notifier
	baseURL  string
	reset    flow
	verify   flow
	now      func() time.Time
	logger   logging.Logger

	pending sync.WaitGroup
}

func NewRecoveryService(
	store db.Store,
	auth *AuthService,
	notifier Notifier,
	authCfg config.AuthConfig,
	baseURL string,
	opts ...Option,
) (*RecoveryService, error) {
	if store == nil || auth == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrMisconfigured)
	}
	if authCfg.ResetTokenTTL <= 0 || authCfg.VerificationTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: one-time token TTL must be positive", ErrMisconfigured)
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	o := buildOptions(opts)
	return &RecoveryService{
		store:    store,
		auth:     auth,
		notifier: notifier,
		baseURL:  baseURL,
		reset: flow{
			kind:     model.TokenKindPasswordReset,
			ttl:      authCfg.ResetTokenTTL,
			subject:  tmpl.PasswordResetSubject,
			body:     tmpl.PasswordResetBody,
			linkPath: "/reset-password",
		},
		verify: flow{
			kind:     model.TokenKindEmailVerification,
			ttl:      authCfg.VerificationTokenTTL,
			subject:  tmpl.VerificationSubject,
			body:     tmpl.VerificationBody,
			linkPath: "/verify-email",
			skip:     func(user *model.User) bool { return user.EmailVerified },
		},
		now:    o.now,
		logger: o.logger.With("module", "recovery"),
	}, nil
}

func (s *RecoveryService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.request(ctx, s.reset, email)
}

func (s *RecoveryService) RequestEmailVerification(ctx context.Context, email string) error {
	return s.request(ctx, s.verify, email)
}

// SendVerification issues a verification token for a user already in hand.
// Failures are logged only; it is meant for the post-registration hook.
func (s *RecoveryService) SendVerification(ctx context.Context, user *model.User) {
	if err := s.issue(ctx, s.verify, user); err != nil {
		s.logger.Error(ctx, "send verification after register", "user_id", user.ID, "error", err)
	}
}

func (s *RecoveryService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	return s.confirm(ctx, s.reset, token, func(ctx context.Context, repo db.Repository, user *model.User) error {
		return s.auth.setPassword(ctx, repo, user, newPassword)
	})
}

func (s *RecoveryService) ConfirmEmailVerification(ctx context.Context, token string) error {
	return s.confirm(ctx, s.verify, token, func(ctx context.Context, repo db.Repository, user *model.User) error {
		user.EmailVerified = true
		user.UpdatedAt = s.now()
		if err := repo.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

// request answers nil for unknown addresses so callers cannot enumerate accounts.
func (s *RecoveryService) request(ctx context.Context, f flow, email string) error {
	if email == "" {
		return ErrInvalidInput
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if f.skip != nil && f.skip(user) {
		return nil
	}

	return s.issue(ctx, f, user)
}

func (s *RecoveryService) issue(ctx context.Context, f flow, user *model.User) error {
	token, err := security.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate %s token: %w", f.kind, err)
	}

	now := s.now()
	record := &model.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Kind:      f.kind,
		TokenHash: security.HashToken(token),
		ExpiresAt: now.Add(f.ttl),
		CreatedAt: now,
	}
	if err := s.store.CreateOneTimeToken(ctx, record); err != nil {
		return fmt.Errorf("store %s token: %w", f.kind, err)
	}

	body := tmpl.RenderBody(f.body, &tmpl.MessageData{
		Email:     user.Email,
		Token:     token,
		Link:      tmpl.BuildLink(s.baseURL, f.linkPath, token),
		ExpiresIn: f.ttl,
		ExpiresAt: record.ExpiresAt,
	})
	s.deliver(ctx, f, user, body)
	return nil
}

// deliver sends the message off the request path. The send outlives the
// request context and is cancelled after deliveryTimeout.
func (s *RecoveryService) deliver(ctx context.Context, f flow, user *model.User, body string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	to, userID := user.Email, user.ID

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.notifier.SendText(sendCtx, to, f.subject, body); err != nil {
			s.logger.Warn(sendCtx, "notification failed", "kind", string(f.kind), "user_id", userID, "error", err)
		}
	}()
}

// Wait blocks until every background delivery has finished.
func (s *RecoveryService) Wait() {
	s.pending.Wait()
}

// confirm marks the token used and applies the effect in one transaction.
func (s *RecoveryService) confirm(
	ctx context.Context,
	f flow,
	token string,
	apply func(ctx context.Context, repo db.Repository, user *model.User) error,
) error {
	if token == "" {
		return ErrInvalidToken
	}
	hash := security.HashToken(token)

	return s.store.WithTx(ctx, func(ctx context.Context, repo db.Repository) error {
		record, err := repo.GetOneTimeTokenByHash(ctx, f.kind, hash)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("lookup %s token: %w", f.kind, err)
		}
		if record.Used {
			return ErrInvalidToken
		}
		if record.Expired(s.now()) {
			return ErrExpired
		}

		marked, err := repo.MarkOneTimeTokenUsed(ctx, record.ID)
		if err != nil {
			return err
		}
		if !marked {
			return ErrInvalidToken
		}

		user, err := repo.GetUserByID(ctx, record.UserID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		if err := apply(ctx, repo, user); err != nil {
			return err
		}
		s.logger.Info(ctx, "one-time token confirmed", "kind", string(f.kind), "user_id", user.ID)
		return nil
	})
}
