package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alpha-starter/backend/internal/config"
	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResetUnknownEmail(t *testing.T) {
	store := &countingStore{Store: db.NewMemoryStore()}
	env := newTestEnv(t, store)

	err := env.recovery.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, env.notifier.messages())
	assert.Zero(t, store.created())
}

func TestRequestResetKnownEmailMatchesUnknown(t *testing.T) {
	store := &countingStore{Store: db.NewMemoryStore()}
	env := newTestEnv(t, store)
	env.register(t, "sam@example.com")
	ctx := context.Background()

	known := env.recovery.RequestPasswordReset(ctx, "sam@example.com")
	unknown := env.recovery.RequestPasswordReset(ctx, "nobody@example.com")
	assert.Equal(t, known, unknown)
	assert.Equal(t, 1, store.created())

	msgs := env.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sam@example.com", msgs[0].to)
	assert.Contains(t, msgs[0].body, testBaseURL+"/reset-password?token=")
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "tina@example.com")
	ctx := context.Background()

	require.NoError(t, env.recovery.RequestPasswordReset(ctx, "tina@example.com"))
	token := env.notifier.lastToken(t)

	record, err := env.store.GetOneTimeTokenByHash(ctx, model.TokenKindPasswordReset, hashOf(token))
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(time.Hour), record.ExpiresAt)
	assert.False(t, record.Used)

	require.NoError(t, env.recovery.ConfirmPasswordReset(ctx, token, "reset password 1"))

	_, err = env.auth.Login(ctx, "tina@example.com", "reset password 1", "10.1.0.1")
	assert.NoError(t, err)
	_, err = env.auth.Login(ctx, "tina@example.com", testPassword, "10.1.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.recovery.ConfirmPasswordReset(ctx, token, "reset password 2")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = env.auth.Login(ctx, "tina@example.com", "reset password 1", "10.1.0.1")
	assert.NoError(t, err, "replay must not change the password again")
}

func TestConfirmResetErrors(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "uma@example.com")
	ctx := context.Background()

	assert.ErrorIs(t, env.recovery.ConfirmPasswordReset(ctx, "", "long enough pw"), ErrInvalidToken)
	assert.ErrorIs(t, env.recovery.ConfirmPasswordReset(ctx, "unknown", "long enough pw"), ErrInvalidToken)

	require.NoError(t, env.recovery.RequestPasswordReset(ctx, "uma@example.com"))
	token := env.notifier.lastToken(t)

	assert.ErrorIs(t, env.recovery.ConfirmPasswordReset(ctx, token, "short"), ErrInvalidInput)
	assert.ErrorIs(t, env.recovery.ConfirmEmailVerification(ctx, token), ErrInvalidToken, "kinds do not cross")

	env.clock.Advance(time.Hour + time.Millisecond)
	assert.ErrorIs(t, env.recovery.ConfirmPasswordReset(ctx, token, "long enough pw"), ErrExpired)
}

func TestResetRevokesSessionsWhenConfigured(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore(), func(c *config.AuthConfig) { c.RevokeSessionsOnPasswordChange = true })
	pair := env.register(t, "vera@example.com")
	ctx := context.Background()

	require.NoError(t, env.recovery.RequestPasswordReset(ctx, "vera@example.com"))
	require.NoError(t, env.recovery.ConfirmPasswordReset(ctx, env.notifier.lastToken(t), "reset password 1"))

	_, err := env.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.notifier.err = assert.AnError
	env.register(t, "walt@example.com")
	ctx := context.Background()

	require.NoError(t, env.recovery.RequestPasswordReset(ctx, "walt@example.com"))
	assert.NoError(t, env.recovery.ConfirmPasswordReset(ctx, env.notifier.lastToken(t), "reset password 1"))
}

func TestEffectFailureLeavesTokenUnused(t *testing.T) {
	mem := db.NewMemoryStore()
	broken := newTestEnv(t, failingUpdateStore{Store: mem})
	broken.register(t, "xena@example.com")
	ctx := context.Background()

	require.NoError(t, broken.recovery.RequestPasswordReset(ctx, "xena@example.com"))
	token := broken.notifier.lastToken(t)

	err := broken.recovery.ConfirmPasswordReset(ctx, token, "reset password 1")
	assert.ErrorIs(t, err, errUpdateFailed)

	record, err := mem.GetOneTimeTokenByHash(ctx, model.TokenKindPasswordReset, hashOf(token))
	require.NoError(t, err)
	assert.False(t, record.Used)

	healthy := newTestEnv(t, mem)
	assert.NoError(t, healthy.recovery.ConfirmPasswordReset(ctx, token, "reset password 1"))
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "yuri@example.com")
	ctx := context.Background()

	require.NoError(t, env.recovery.RequestEmailVerification(ctx, "yuri@example.com"))
	msgs := env.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].body, "/verify-email?token=")
	token := env.notifier.lastToken(t)

	record, err := env.store.GetOneTimeTokenByHash(ctx, model.TokenKindEmailVerification, hashOf(token))
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), record.ExpiresAt)

	require.NoError(t, env.recovery.ConfirmEmailVerification(ctx, token))
	user, err := env.auth.Me(ctx, env.userID(t, "yuri@example.com"))
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	assert.ErrorIs(t, env.recovery.ConfirmEmailVerification(ctx, token), ErrInvalidToken)

	// verified users are not sent another token
	require.NoError(t, env.recovery.RequestEmailVerification(ctx, "yuri@example.com"))
	assert.Len(t, env.notifier.messages(), 1)

	pair, err := env.auth.Login(ctx, "yuri@example.com", testPassword, "10.1.0.2")
	require.NoError(t, err)
	claims, err := env.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, true, claims.Extensions["email_verified"])
}

func TestVerificationExpires(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "zoe@example.com")
	ctx := context.Background()

	require.NoError(t, env.recovery.RequestEmailVerification(ctx, "zoe@example.com"))
	token := env.notifier.lastToken(t)

	env.clock.Advance(24*time.Hour + time.Second)
	assert.ErrorIs(t, env.recovery.ConfirmEmailVerification(ctx, token), ErrExpired)
}

func TestSendVerificationHook(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.auth.OnRegister(env.recovery.SendVerification)

	env.register(t, "abe@example.com")
	msgs := env.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "abe@example.com", msgs[0].to)
	assert.True(t, strings.HasPrefix(msgs[0].subject, "Verify"))
}

func TestRequestRequiresEmail(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	assert.ErrorIs(t, env.recovery.RequestPasswordReset(context.Background(), ""), ErrInvalidInput)
}

func TestConcurrentConfirmSingleSuccess(t *testing.T) {
	stores := map[string]func(t *testing.T) db.Store{
		"memory": func(t *testing.T) db.Store { return db.NewMemoryStore() },
		"sqlite": func(t *testing.T) db.Store {
			store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
			require.NoError(t, err)
			require.NoError(t, store.Migrate(context.Background()))
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, open(t))
			env.register(t, "race@example.com")
			ctx := context.Background()

			require.NoError(t, env.recovery.RequestPasswordReset(ctx, "race@example.com"))
			token := env.notifier.lastToken(t)

			const workers = 8
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = env.recovery.ConfirmPasswordReset(ctx, token, "winner password")
				}(i)
			}
			wg.Wait()

			var wins int
			for _, err := range errs {
				if err == nil {
					wins++
					continue
				}
				assert.ErrorIs(t, err, ErrInvalidToken)
			}
			assert.Equal(t, 1, wins)
		})
	}
}

func TestNewRecoveryServiceConfig(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	cfg := testAuthConfig()
	cfg.ResetTokenTTL = 0
	_, err := NewRecoveryService(env.store, env.auth, nil, cfg, "")
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewRecoveryService(env.store, nil, nil, testAuthConfig(), "")
	assert.ErrorIs(t, err, ErrMisconfigured)
}

// gatedNotifier holds every send until release is closed.
type gatedNotifier struct {
	fakeNotifier
	release chan struct{}
	ctxErr  error
}

func (n *gatedNotifier) SendText(ctx context.Context, to, subject, body string) error {
	<-n.release
	n.mu.Lock()
	n.ctxErr = ctx.Err()
	n.mu.Unlock()
	return n.fakeNotifier.SendText(ctx, to, subject, body)
}

func TestRequestResetDoesNotWaitForDelivery(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "yuri@example.com")

	slow := &gatedNotifier{release: make(chan struct{})}
	recovery, err := NewRecoveryService(env.store, env.auth, slow, testAuthConfig(), testBaseURL, WithClock(env.clock.Now))
	require.NoError(t, err)

	timed := func(email string) time.Duration {
		start := time.Now()
		require.NoError(t, recovery.RequestPasswordReset(context.Background(), email))
		return time.Since(start)
	}
	const bound = 250 * time.Millisecond

	known := timed("yuri@example.com")
	unknown := timed("nobody@example.com")
	assert.Less(t, known, bound)
	assert.Less(t, unknown, bound)

	time.Sleep(bound)
	assert.Empty(t, slow.messages(), "delivery still held")

	close(slow.release)
	recovery.Wait()
	sent := slow.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "yuri@example.com", sent[0].to)
}

func TestDeliveryOutlivesRequestContext(t *testing.T) {
	env := newTestEnv(t, db.NewMemoryStore())
	env.register(t, "zara@example.com")

	slow := &gatedNotifier{release: make(chan struct{})}
	recovery, err := NewRecoveryService(env.store, env.auth, slow, testAuthConfig(), testBaseURL, WithClock(env.clock.Now))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, recovery.RequestPasswordReset(ctx, "zara@example.com"))
	cancel()

	close(slow.release)
	recovery.Wait()
	require.Len(t, slow.messages(), 1)
	assert.NoError(t, slow.ctxErr)
}
