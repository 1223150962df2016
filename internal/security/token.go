package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrMisconfigured = errors.New("token codec misconfigured")
	ErrReservedClaim = errors.New("reserved claim")
)

var reservedClaims = map[string]struct{}{
	"sub": {}, "iat": {}, "exp": {}, "nbf": {}, "iss": {}, "aud": {}, "jti": {},
}

// Extensions are optional claims carried next to the subject and timing claims.
// The codec does not interpret them; callers validate with ValidateExtensions.
type Extensions map[string]any

// ValidateExtensions rejects keys that collide with registered claims.
func ValidateExtensions(ext Extensions) error {
	for k := range ext {
		if _, ok := reservedClaims[k]; ok {
			return fmt.Errorf("%w: %s", ErrReservedClaim, k)
		}
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty name", ErrReservedClaim)
		}
	}
	return nil
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject    string
	IssuedAt   time.Time
	ExpiresAt  *time.Time
	Extensions Extensions
}

// TokenCodec signs and verifies compact access tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces the wall clock used for iat/exp.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec accepts the HMAC algorithms HS256, HS384 and HS512.
func NewTokenCodec(secret, algorithm string, opts ...CodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrMisconfigured)
	}

	alg := strings.ToUpper(strings.TrimSpace(algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok || method == nil {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMisconfigured, algorithm)
	}

	c := &TokenCodec{
		secret: []byte(secret),
		method: method,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TokenCodec) Algorithm() string {
	return c.method.Alg()
}

// Issue signs a claim set for subject. exp is set only when ttl > 0.
func (c *TokenCodec) Issue(subject string, ttl time.Duration, ext Extensions) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}

	now := c.now()
	claims := jwt.MapClaims{}
	for k, v := range ext {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Verify checks signature, algorithm and expiry. A past exp yields
// ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sub, err := mc.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, ErrTokenInvalid
	}
	iat, err := mc.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, ErrTokenInvalid
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{
		Subject:  sub,
		IssuedAt: iat.Time.UTC(),
	}
	if exp != nil {
		t := exp.Time.UTC()
		claims.ExpiresAt = &t
	}
	for k, v := range mc {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		if claims.Extensions == nil {
			claims.Extensions = Extensions{}
		}
		claims.Extensions[k] = v
	}
	return claims, nil
}
