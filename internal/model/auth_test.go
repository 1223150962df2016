package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiry(t *testing.T) {
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rt := &RefreshToken{ExpiresAt: exp}
	ot := &OneTimeToken{ExpiresAt: exp}

	assert.False(t, rt.Expired(exp.Add(-time.Second)))
	assert.False(t, rt.Expired(exp))
	assert.True(t, rt.Expired(exp.Add(time.Millisecond)))

	assert.False(t, ot.Expired(exp))
	assert.True(t, ot.Expired(exp.Add(time.Millisecond)))
}

func TestTokenKindValid(t *testing.T) {
	assert.True(t, TokenKindPasswordReset.Valid())
	assert.True(t, TokenKindEmailVerification.Valid())
	assert.False(t, TokenKind("refresh").Valid())
}

func TestUserAuthUser(t *testing.T) {
	u := &User{ID: "u1", Email: "a@example.com", EmailVerified: true, PasswordHash: "h"}
	assert.Equal(t, &AuthUser{ID: "u1", Email: "a@example.com", EmailVerified: true}, u.AuthUser())
}
