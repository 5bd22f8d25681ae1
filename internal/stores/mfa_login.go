package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound covers unknown and expired MFA challenges.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	// ErrChallengeAttemptsExceeded is returned when a failed verification
	// burns the challenge's last attempt; the challenge is deleted.
	ErrChallengeAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrChallengeBackend wraps Redis failures.
	ErrChallengeBackend = errors.New("mfa challenge backend unavailable")
)

// failScript burns one attempt and deletes the challenge once the budget
// is spent. Returns the attempt count, or -1 for a missing challenge.
const failScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if n >= tonumber(ARGV[1]) then
  redis.call("DEL", KEYS[1])
end
return n
`

var failLua = redis.NewScript(failScript)

// MFAChallenge is the pending state between a correct password and a
// completed second factor. No session exists while one of these is live.
type MFAChallenge struct {
	ID       string
	UserID   string
	Attempts int
}

// MFAChallengeStore keeps pending MFA sign-in challenges in Redis.
type MFAChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewMFAChallengeStore creates the store. An empty prefix defaults to "mc".
func NewMFAChallengeStore(redisClient redis.UniversalClient, prefix string) *MFAChallengeStore {
	if prefix == "" {
		prefix = "mc"
	}
	return &MFAChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *MFAChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Create opens a challenge for userID and returns its opaque ID.
func (s *MFAChallengeStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(id), "uid", userID, "attempts", 0)
		pipe.PExpire(ctx, s.key(id), ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return id, nil
}

// Get fetches a live challenge.
func (s *MFAChallengeStore) Get(ctx context.Context, challengeID string) (*MFAChallenge, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(challengeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if len(vals) == 0 {
		return nil, ErrChallengeNotFound
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	return &MFAChallenge{
		ID:       challengeID,
		UserID:   vals["uid"],
		Attempts: attempts,
	}, nil
}

// RecordFailure burns one attempt. When the budget is exhausted the
// challenge is destroyed and [ErrChallengeAttemptsExceeded] returned, so
// the caller forces the user back to password sign-in.
func (s *MFAChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) error {
	n, err := failLua.Run(ctx, s.redis, []string{s.key(challengeID)}, maxAttempts).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if n < 0 {
		return ErrChallengeNotFound
	}
	if n >= int64(maxAttempts) {
		return ErrChallengeAttemptsExceeded
	}
	return nil
}

// Delete closes a challenge, typically after successful verification.
// Idempotent.
func (s *MFAChallengeStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}
