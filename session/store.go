package session

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
	// ErrNotFound is returned when no live session matches the token or ID.
	ErrNotFound = errors.New("session not found")
	// ErrReuseDetected is returned when a rotated-out refresh token is
	// presented after its grace deadline. The session has been destroyed.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("session backend unavailable")
)

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusExpired   int64 = 1
	rotateStatusUnchanged int64 = 2
	rotateStatusRotated   int64 = 3
	rotateStatusGrace     int64 = 4
	rotateStatusMismatch  int64 = 5
)

// rotateScript is the refresh CAS. Field layout of the session hash:
//
//	uid  user ID
//	rh   live refresh-secret hash
//	ph   previous hash (rotation grace slot)
//	pu   grace deadline, unix seconds
//	ca   created at, unix seconds
//	ea   expires at, unix seconds
//	ip   client IP at creation
//	ua   user agent at creation
//
// ARGV: provided hash, next hash, now, ttl, renew-within, grace (all
// durations in seconds), user index prefix, session ID.
const rotateScript = `
local vals = redis.call("HMGET", KEYS[1], "uid", "rh", "ph", "pu", "ea")
if not vals[1] then
  return {0}
end
local uid = vals[1]
local rh = vals[2]
local ph = vals[3]
local pu = tonumber(vals[4] or "0")
local ea = tonumber(vals[5] or "0")
local now = tonumber(ARGV[3])
local user_key = ARGV[7] .. uid

if ea <= now then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", user_key, ARGV[8])
  return {1}
end

if ARGV[1] == rh then
  if ea - now > tonumber(ARGV[5]) then
    return {2, ea}
  end
  local new_ea = now + tonumber(ARGV[4])
  redis.call("HSET", KEYS[1], "ph", rh, "pu", now + tonumber(ARGV[6]), "rh", ARGV[2], "ea", new_ea)
  redis.call("PEXPIRE", KEYS[1], (tonumber(ARGV[4]) + tonumber(ARGV[6])) * 1000)
  return {3, new_ea}
end

if ph and ARGV[1] == ph and now < pu then
  return {4, ea}
end

redis.call("DEL", KEYS[1])
redis.call("SREM", user_key, ARGV[8])
return {5}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
if uid then
  redis.call("SREM", ARGV[1] .. uid, ARGV[2])
end
return redis.call("DEL", KEYS[1])
`

var revokeLua = redis.NewScript(revokeScript)

// Meta carries request attribution recorded on the session row.
type Meta struct {
	IP        string
	UserAgent string
}

// Store persists sessions in Redis. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewStore creates a session [Store]. prefix namespaces the Redis keys
// (empty defaults to "as"); grace is the rotation overlap during which a
// just-rotated token still validates.
func NewStore(redisClient redis.UniversalClient, prefix string, grace time.Duration) *Store {
	if prefix == "" {
		prefix = "as"
	}
	if grace < 0 {
		grace = 0
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		grace:  grace,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// userPrefix ends with ":" so the Lua scripts can append the user ID.
func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Create persists a new session with the given TTL and returns it together
// with the refresh token. The token is the only copy of the secret.
func (s *Store) Create(ctx context.Context, userID string, meta Meta, ttl time.Duration) (*Session, string, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
		refreshHash: hashSecret(secret),
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(sess.ID),
			"uid", sess.UserID,
			"rh", sess.refreshHash,
			"ca", sess.CreatedAt,
			"ea", sess.ExpiresAt,
			"ip", sess.IP,
			"ua", sess.UserAgent,
		)
		pipe.PExpire(ctx, s.key(sess.ID), ttl+s.grace)
		pipe.SAdd(ctx, s.userKey(userID), sess.ID)
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, EncodeToken(sess.ID, secret), nil
}

// Validate resolves a refresh token to its live session. Expired sessions
// are reaped on lookup. Returns [ErrNotFound] for anything that should read
// as "no such session" to the caller: unknown ID, expired row, or a hash
// that matches neither the live nor the in-grace slot.
func (s *Store) Validate(ctx context.Context, token string) (*Session, error) {
	sessionID, secret, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	provided := hashSecret(secret)
	if provided != sess.refreshHash {
		ph, pu, err := s.graceSlot(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if ph == "" || provided != ph || now >= pu {
			return nil, ErrNotFound
		}
	}
	return sess, nil
}

// Refresh applies the renewal policy to the session behind token: when more
// than renewWithin validity remains the session is returned unchanged with
// the same token; otherwise the token is rotated and the expiry extended to
// ttl. The rotated flag reports which case occurred. A concurrent loser
// that presents the just-rotated token inside the grace window receives the
// live session and keeps its token (valid until the grace deadline).
func (s *Store) Refresh(ctx context.Context, token string, ttl, renewWithin time.Duration) (*Session, string, bool, error) {
	sessionID, secret, err := DecodeToken(token)
	if err != nil {
		return nil, "", false, err
	}

	nextSecret, err := newSecret()
	if err != nil {
		return nil, "", false, err
	}

	raw, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		hashSecret(secret),
		hashSecret(nextSecret),
		time.Now().Unix(),
		int64(ttl.Seconds()),
		int64(renewWithin.Seconds()),
		int64(s.grace.Seconds()),
		s.userPrefix(),
		sessionID,
	).Result()
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, "", false, fmt.Errorf("%w: malformed rotate response", ErrRedisUnavailable)
	}
	status, _ := parts[0].(int64)

	switch status {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, "", false, ErrNotFound
	case rotateStatusMismatch:
		return nil, "", false, ErrReuseDetected
	case rotateStatusUnchanged, rotateStatusGrace:
		sess, err := s.get(ctx, sessionID)
		if err != nil {
			return nil, "", false, err
		}
		return sess, token, false, nil
	case rotateStatusRotated:
		sess, err := s.get(ctx, sessionID)
		if err != nil {
			return nil, "", false, err
		}
		return sess, EncodeToken(sessionID, nextSecret), true, nil
	default:
		return nil, "", false, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Get fetches a session by ID without touching its TTL.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.get(ctx, sessionID)
}

func (s *Store) get(ctx context.Context, sessionID string) (*Session, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	sess := &Session{
		ID:          sessionID,
		UserID:      vals["uid"],
		IP:          vals["ip"],
		UserAgent:   vals["ua"],
		refreshHash: vals["rh"],
	}
	sess.CreatedAt, _ = strconv.ParseInt(vals["ca"], 10, 64)
	sess.ExpiresAt, _ = strconv.ParseInt(vals["ea"], 10, 64)

	if time.Now().Unix() >= sess.ExpiresAt {
		if err := s.Revoke(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) graceSlot(ctx context.Context, sessionID string) (string, int64, error) {
	vals, err := s.redis.HMGet(ctx, s.key(sessionID), "ph", "pu").Result()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ph, _ := vals[0].(string)
	puStr, _ := vals[1].(string)
	pu, _ := strconv.ParseInt(puStr, 10, 64)
	return ph, pu, nil
}

// Revoke deletes one session and its index entry. Idempotent.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	err := revokeLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.userPrefix(), sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every session for the user. Idempotent. A session
// created concurrently with this call may be missed; callers needing a hard
// cut (password reset) invoke it after the credential swap so stragglers
// cannot refresh anyway.
func (s *Store) RevokeAll(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range sessionIDs {
			pipe.Del(ctx, s.key(id))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists the indexed session IDs for a user. The index may
// briefly include just-expired sessions; it is maintenance data, not an
// authorization input.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping reports backend availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
