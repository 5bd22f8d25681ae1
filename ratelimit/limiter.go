package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable is returned when Redis cannot answer. Callers on
// security-critical paths must treat it as a denial.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// checkScript performs the whole state transition atomically:
//
//	blocked           -> deny, report block TTL, no increment
//	counter under max -> increment, allow, report remaining + window TTL
//	counter at max    -> create block, drop counter, deny
//
// Dropping the counter when the block is created means the first check
// after the block expires starts a fresh window at attempts=1.
const checkScript = `
local blocked = redis.call("PTTL", KEYS[2])
if blocked > 0 then
  return {0, 0, blocked, 1}
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local max = tonumber(ARGV[1])
if n > max then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
  redis.call("DEL", KEYS[1])
  return {0, 0, tonumber(ARGV[3]), 1}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[2])
end
return {1, max - n, ttl, 0}
`

var checkLua = redis.NewScript(checkScript)

// Result is the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Blocked    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter enforces per-(identifier, action) attempt budgets using Redis
// counters. All state lives in Redis; a Limiter is safe for concurrent use.
type Limiter struct {
	redis    redis.UniversalClient
	policies PolicyTable
	prefix   string
}

// New creates a [Limiter]. An empty prefix defaults to "rl".
func New(redisClient redis.UniversalClient, policies PolicyTable, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		redis:    redisClient,
		policies: policies,
		prefix:   prefix,
	}
}

func (l *Limiter) counterKey(identifier string, action Action) string {
	return l.prefix + ":c:" + string(action) + ":" + normalizeIdentifier(identifier)
}

func (l *Limiter) blockKey(identifier string, action Action) string {
	return l.prefix + ":b:" + string(action) + ":" + normalizeIdentifier(identifier)
}

// Identifiers are usually emails or IPs; emails compare case-insensitively.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Check consumes one attempt for the (identifier, action) pair and reports
// whether the caller may proceed. A denied check while blocked does not
// consume an attempt or extend the block.
func (l *Limiter) Check(ctx context.Context, identifier string, action Action) (Result, error) {
	policy := l.policies.policyFor(action)

	raw, err := checkLua.Run(
		ctx,
		l.redis,
		[]string{l.counterKey(identifier, action), l.blockKey(identifier, action)},
		policy.MaxAttempts,
		policy.Window.Milliseconds(),
		policy.Block.Milliseconds(),
	).Result()
	if err != nil {
		return Result{Limit: policy.MaxAttempts}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 4 {
		return Result{Limit: policy.MaxAttempts}, fmt.Errorf("%w: malformed script response", ErrBackendUnavailable)
	}

	allowed := scriptInt(parts[0]) == 1
	remaining := int(scriptInt(parts[1]))
	resetMS := scriptInt(parts[2])
	blocked := scriptInt(parts[3]) == 1

	retryAfter := time.Duration(resetMS) * time.Millisecond
	return Result{
		Allowed:    allowed,
		Blocked:    blocked,
		Limit:      policy.MaxAttempts,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAt:    time.Now().Add(retryAfter),
	}, nil
}

// Reset clears the window counter for the pair, typically after a
// successful authentication. An active block is left in place: lockout
// expiry is time-based only.
func (l *Limiter) Reset(ctx context.Context, identifier string, action Action) error {
	if err := l.redis.Del(ctx, l.counterKey(identifier, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for the pair. Missing keys read as
// zero and do not reveal whether the identifier exists.
func (l *Limiter) Attempts(ctx context.Context, identifier string, action Action) (int, error) {
	n, err := l.redis.Get(ctx, l.counterKey(identifier, action)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

// Policy exposes the effective policy for an action so callers can stamp
// X-RateLimit-Limit style response headers.
func (l *Limiter) Policy(action Action) Policy {
	return l.policies.policyFor(action)
}

func scriptInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
