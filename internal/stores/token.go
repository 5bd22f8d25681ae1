package stores

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTokenNotFound covers unknown, expired, and already-consumed
	// tokens alike; callers must not distinguish them to the user.
	ErrTokenNotFound = errors.New("challenge token not found")
	// ErrTokenBackend wraps Redis failures.
	ErrTokenBackend = errors.New("challenge token backend unavailable")
)

const tokenBytes = 32

// consumeScript deletes on read so a token can be spent exactly once even
// under concurrent completion attempts.
const consumeScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return false
end
redis.call("DEL", KEYS[1])
return v
`

var consumeLua = redis.NewScript(consumeScript)

// TokenStore issues and redeems opaque single-use tokens bound to a user,
// used for password reset and email verification challenges.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenStore creates a [TokenStore] under the given key prefix.
func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{redis: redisClient, prefix: prefix}
}

func (s *TokenStore) key(token string) string {
	digest := sha256.Sum256([]byte(token))
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Issue mints a fresh token for userID with the given lifetime. Issuing a
// new token supersedes nothing: multiple outstanding tokens age out on
// their own TTLs; the caller decides whether to invalidate prior ones.
func (s *TokenStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.redis.Set(ctx, s.key(token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	return token, nil
}

// Peek resolves a token to its user without consuming it.
func (s *TokenStore) Peek(ctx context.Context, token string) (string, error) {
	userID, err := s.redis.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	return userID, nil
}

// Consume atomically redeems a token, returning its user. A second call
// with the same token fails with [ErrTokenNotFound].
func (s *TokenStore) Consume(ctx context.Context, token string) (string, error) {
	raw, err := consumeLua.Run(ctx, s.redis, []string{s.key(token)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	userID, ok := raw.(string)
	if !ok || userID == "" {
		return "", ErrTokenNotFound
	}
	return userID, nil
}

// Revoke discards a token before redemption. Idempotent.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	return nil
}
