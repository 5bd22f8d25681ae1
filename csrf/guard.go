// Package csrf issues and validates per-session anti-forgery tokens.
//
// The token is HMAC-SHA256(secret, sessionToken), hex encoded. It is
// derived, never stored: validation recomputes and compares in constant
// time. The token is stable for the session's lifetime; regenerating it
// per request would race the double-submit cookie.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSecretTooShort rejects guessable guard secrets.
var ErrSecretTooShort = errors.New("csrf: secret must be at least 32 bytes")

// Guard derives anti-forgery tokens from a server-side secret. Immutable
// and safe for concurrent use.
type Guard struct {
	secret []byte
}

// NewGuard creates a [Guard]. The secret must be at least 32 bytes.
func NewGuard(secret []byte) (*Guard, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Guard{secret: key}, nil
}

// Issue derives the anti-forgery token bound to sessionToken.
func (g *Guard) Issue(sessionToken string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(sessionToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate reports whether provided is the token bound to sessionToken.
// Comparison is constant time; a token issued for another session or with
// any bit flipped never validates.
func (g *Guard) Validate(provided, sessionToken string) bool {
	if provided == "" || sessionToken == "" {
		return false
	}
	expected, err := hex.DecodeString(g.Issue(sessionToken))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(got, expected)
}
