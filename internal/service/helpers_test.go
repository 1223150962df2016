package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alpha-starter/backend/internal/config"
	"github.com/alpha-starter/backend/internal/db"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/alpha-starter/backend/internal/security"
	"github.com/alpha-starter/backend/internal/throttle"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct horse"
	testBaseURL  = "https://app.test"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	// wait drains background deliveries before the sent list is read.
	wait func()
}

func (n *fakeNotifier) SendText(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to: to, subject: subject, body: body})
	return n.err
}

func (n *fakeNotifier) messages() []sentMessage {
	if n.wait != nil {
		n.wait()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken pulls the one-time token out of the most recent message link.
func (n *fakeNotifier) lastToken(t *testing.T) string {
	t.Helper()
	msgs := n.messages()
	require.NotEmpty(t, msgs)
	m := tokenPattern.FindStringSubmatch(msgs[len(msgs)-1].body)
	require.Len(t, m, 2)
	return m[1]
}

// countingStore records one-time token inserts.
type countingStore struct {
	db.Store
	mu       sync.Mutex
	oneTimes int
}

func (s *countingStore) CreateOneTimeToken(ctx context.Context, token *model.OneTimeToken) error {
	s.mu.Lock()
	s.oneTimes++
	s.mu.Unlock()
	return s.Store.CreateOneTimeToken(ctx, token)
}

func (s *countingStore) created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oneTimes
}

// failingUpdateStore hands out transactional repos whose UpdateUser fails.
type failingUpdateStore struct {
	db.Store
}

type failingUpdateRepo struct {
	db.Repository
}

var errUpdateFailed = errors.New("update failed")

func (r failingUpdateRepo) UpdateUser(context.Context, *model.User) error {
	return errUpdateFailed
}

func (s failingUpdateStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo db.Repository) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, repo db.Repository) error {
		return fn(ctx, failingUpdateRepo{Repository: repo})
	})
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            testSecret,
		JWTAlg:               "HS256",
		JWTExpireMinutes:     30,
		RefreshExpireDays:    7,
		ResetTokenTTL:        time.Hour,
		VerificationTokenTTL: 24 * time.Hour,
		LoginWindow:          time.Minute,
		LoginLimit:           10,
		AllowSignup:          true,
		CookieSecure:         true,
		CookieSameSite:       "lax",
		CookiePath:           "/",
	}
}

type testEnv struct {
	clock    *fakeClock
	store    db.Store
	codec    *security.TokenCodec
	auth     *AuthService
	guard    *Guard
	recovery *RecoveryService
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, store db.Store, mutate ...func(*config.AuthConfig)) *testEnv {
	t.Helper()
	cfg := testAuthConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	clock := newFakeClock()
	codec, err := security.NewTokenCodec(cfg.JWTSecret, cfg.JWTAlg, security.WithClock(clock.Now))
	require.NoError(t, err)

	limiter := throttle.NewSlidingWindow(cfg.LoginWindow, cfg.LoginLimit, throttle.WithClock(clock.Now))
	auth, err := NewAuthService(store, codec, security.NewBcryptHasher(bcrypt.MinCost), limiter, cfg, WithClock(clock.Now))
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	recovery, err := NewRecoveryService(store, auth, notifier, cfg, testBaseURL, WithClock(clock.Now))
	require.NoError(t, err)
	notifier.wait = recovery.Wait

	return &testEnv{
		clock:    clock,
		store:    store,
		codec:    codec,
		auth:     auth,
		guard:    NewGuard(store, codec),
		recovery: recovery,
		notifier: notifier,
	}
}

func (e *testEnv) register(t *testing.T, email string) *TokenPair {
	t.Helper()
	pair, err := e.auth.Register(context.Background(), email, testPassword)
	require.NoError(t, err)
	return pair
}

func (e *testEnv) userID(t *testing.T, email string) string {
	t.Helper()
	user, err := e.store.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return user.ID
}

func hashOf(token string) string {
	return security.HashToken(token)
}
