package password

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrHistoryUnavailable wraps Redis failures on the history list.
var ErrHistoryUnavailable = errors.New("password history backend unavailable")

// History keeps a bounded, most-recent-first list of prior password hashes
// per user. Hashes are salted, so reuse detection verifies the candidate
// against each stored hash rather than comparing digests.
type History struct {
	redis  redis.UniversalClient
	hasher *Hasher
	prefix string
	limit  int
}

// NewHistory creates a [History] retaining up to limit entries per user
// (default 10). An empty prefix defaults to "ph".
func NewHistory(redisClient redis.UniversalClient, hasher *Hasher, prefix string, limit int) *History {
	if prefix == "" {
		prefix = "ph"
	}
	if limit <= 0 {
		limit = 10
	}
	return &History{
		redis:  redisClient,
		hasher: hasher,
		prefix: prefix,
		limit:  limit,
	}
}

func (h *History) key(userID string) string {
	return h.prefix + ":" + userID
}

// Record pushes a hash to the front of the user's history and trims to the
// retention limit.
func (h *History) Record(ctx context.Context, userID, hash string) error {
	_, err := h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, h.key(userID), hash)
		pipe.LTrim(ctx, h.key(userID), 0, int64(h.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return nil
}

// IsReused reports whether candidate verifies against any retained hash.
func (h *History) IsReused(ctx context.Context, userID, candidate string) (bool, error) {
	hashes, err := h.redis.LRange(ctx, h.key(userID), 0, int64(h.limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	for _, hash := range hashes {
		ok, err := h.hasher.Verify(candidate, hash)
		if err != nil {
			// A corrupt history entry must not brick password changes.
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Clear drops the user's history, e.g. on account deletion.
func (h *History) Clear(ctx context.Context, userID string) error {
	if err := h.redis.Del(ctx, h.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return nil
}
