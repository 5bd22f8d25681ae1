package authcore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims are the claims carried by an access token. The session ID
// lets sign-out and audit correlate the JWT with its Redis session.
type accessClaims struct {
	jwt.RegisteredClaims
	SID string `json:"sid"`
}

// tokenManager issues and verifies HS256 access tokens.
type tokenManager struct {
	key    []byte
	ttl    time.Duration
	issuer string
}

func newTokenManager(cfg TokenConfig) *tokenManager {
	return &tokenManager{
		key:    cfg.SigningKey,
		ttl:    cfg.AccessTTL,
		issuer: cfg.Issuer,
	}
}

func (m *tokenManager) Issue(userID, sessionID string, now time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		SID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return signed, nil
}

// Parse verifies signature, expiry, and issuer. Any failure maps to
// [ErrTokenInvalid] without detail.
func (m *tokenManager) Parse(tokenStr string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
