package model

import "time"

type User struct {
	ID            string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthUser is the identity attached to a request that passed the auth guard.
type AuthUser struct {
	ID            string
	Email         string
	EmailVerified bool
}

func (u *User) AuthUser() *AuthUser {
	return &AuthUser{ID: u.ID, Email: u.Email, EmailVerified: u.EmailVerified}
}

type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type TokenKind string

const (
	TokenKindPasswordReset     TokenKind = "password_reset"
	TokenKindEmailVerification TokenKind = "email_verification"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindPasswordReset || k == TokenKindEmailVerification
}

// OneTimeToken grants a single privileged action before it is used or expires.
type OneTimeToken struct {
	ID        string
	UserID    string
	Kind      TokenKind
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (t *OneTimeToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type RecoveryRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type VerifyConfirmRequest struct {
	Token string `json:"token"`
}

type AuthConfigResponse struct {
	AllowSignup bool `json:"allowSignup"`
}

type AuthMeResponse struct {
	UserID        string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}
