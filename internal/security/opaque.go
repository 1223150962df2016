package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const opaqueTokenBytes = 32

// NewOpaqueToken returns a URL-safe random token carrying 256 bits of entropy.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken is the at-rest form of an opaque token. Stores index this value,
// never the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
