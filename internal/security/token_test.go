package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCodec(t *testing.T, secret string, clock *fakeClock) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(secret, "HS256", WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func TestNewTokenCodec_Validation(t *testing.T) {
	_, err := NewTokenCodec("", "HS256")
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewTokenCodec("secret", "RS256")
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewTokenCodec("secret", "none")
	assert.ErrorIs(t, err, ErrMisconfigured)

	for _, alg := range []string{"HS256", "hs384", "HS512", ""} {
		c, err := NewTokenCodec("secret", alg)
		require.NoError(t, err, alg)
		assert.True(t, strings.HasPrefix(c.Algorithm(), "HS"))
	}
}

func TestTokenCodec_IssueVerify(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := newCodec(t, "secret", clock)

	tok, err := c.Issue("user-1", 15*time.Minute, Extensions{"email_verified": true})
	require.NoError(t, err)

	claims, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, clock.t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, clock.t.Add(15*time.Minute), *claims.ExpiresAt)
	assert.Equal(t, true, claims.Extensions["email_verified"])
}

func TestTokenCodec_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)

	tok, err := c.Issue("user-1", time.Minute, nil)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodec_NoExpiryWhenTTLNotPositive(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)

	for _, ttl := range []time.Duration{0, -time.Minute} {
		tok, err := c.Issue("user-1", ttl, nil)
		require.NoError(t, err)

		clock.Advance(24 * 365 * time.Hour)
		claims, err := c.Verify(tok)
		require.NoError(t, err)
		assert.Nil(t, claims.ExpiresAt)
	}
}

func TestTokenCodec_ReservedClaimsWinOverExtensions(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)

	tok, err := c.Issue("user-1", time.Minute, Extensions{"sub": "admin", "exp": 0})
	require.NoError(t, err)

	claims, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
}

func TestTokenCodec_RejectsForeignAndTamperedTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)
	other := newCodec(t, "other-secret", clock)

	foreign, err := other.Issue("user-1", time.Minute, nil)
	require.NoError(t, err)
	_, err = c.Verify(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	tok, err := c.Issue("user-1", time.Minute, nil)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	forged, err := other.Issue("user-2", time.Minute, nil)
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]
	_, err = c.Verify(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	for _, bad := range []string{"", "garbage", "a.b.c", parts[0] + "." + parts[1]} {
		_, err = c.Verify(bad)
		assert.ErrorIs(t, err, ErrTokenInvalid, bad)
	}
}

func TestTokenCodec_ExpiredForeignTokenIsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)
	other := newCodec(t, "other-secret", clock)

	tok, err := other.Issue("user-1", time.Minute, nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_RejectsAlgorithmSwitch(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)

	claims := jwt.MapClaims{"sub": "user-1", "iat": jwt.NewNumericDate(clock.t)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Verify(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_MissingSubjectIsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	c := newCodec(t, "secret", clock)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": jwt.NewNumericDate(clock.t),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateExtensions(t *testing.T) {
	assert.NoError(t, ValidateExtensions(nil))
	assert.NoError(t, ValidateExtensions(Extensions{"role": "member"}))
	assert.ErrorIs(t, ValidateExtensions(Extensions{"sub": "x"}), ErrReservedClaim)
	assert.ErrorIs(t, ValidateExtensions(Extensions{" ": 1}), ErrReservedClaim)
}
