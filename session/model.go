package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const refreshSecretBytes = 64

// Session is the durable record behind one refresh token. Timestamps are
// Unix seconds; hashes are unpadded base64 SHA-256 of the opaque secret.
type Session struct {
	ID        string
	UserID    string
	IP        string
	UserAgent string
	CreatedAt int64
	ExpiresAt int64

	refreshHash string
}

// Remaining reports the validity left at the given instant.
func (s *Session) Remaining(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// ErrTokenMalformed is returned for refresh tokens that do not decode.
var ErrTokenMalformed = errors.New("malformed refresh token")

// newSecret returns a fresh opaque refresh secret.
func newSecret() ([]byte, error) {
	secret := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// EncodeToken builds the wire form of a refresh token: the session ID and
// the base64url secret joined by a dot. The secret never touches Redis.
func EncodeToken(sessionID string, secret []byte) string {
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(secret)
}

// DecodeToken splits a wire token back into session ID and secret.
func DecodeToken(token string) (string, []byte, error) {
	id, enc, ok := strings.Cut(token, ".")
	if !ok || id == "" || enc == "" {
		return "", nil, ErrTokenMalformed
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", nil, ErrTokenMalformed
	}
	secret, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil || len(secret) != refreshSecretBytes {
		return "", nil, ErrTokenMalformed
	}
	return id, secret, nil
}

// hashSecret is the stored form of a refresh secret.
func hashSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}
