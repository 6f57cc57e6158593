package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRevoked  int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
	rotateStatusSubject  int64 = 5
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "sub", ARGV[1], "rid", ARGV[2], "iat", ARGV[3], "exp", ARGV[4], "rev", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("SADD", KEYS[2], ARGV[5])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[6]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[6])
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const rotateRefreshScript = `
local key = KEYS[1]
local fields = redis.call("HMGET", key, "sub", "rid", "iat", "exp", "rev")
if not fields[1] then
  return {0}
end
if ARGV[7] ~= "" and fields[1] ~= ARGV[7] then
  return {5}
end
if fields[5] == "1" then
  return {1}
end

local now_ms = tonumber(ARGV[3])
local exp_ms = tonumber(fields[4])
if not exp_ms or exp_ms <= now_ms then
  return {2}
end
if fields[2] ~= ARGV[1] then
  return {3}
end

redis.call("HSET", key, "rid", ARGV[2])
local exp_out = fields[4]
if ARGV[4] ~= "0" then
  redis.call("HSET", key, "exp", ARGV[4])
  redis.call("PEXPIRE", key, ARGV[6])
  local index_key = ARGV[5] .. fields[1]
  if redis.call("PTTL", index_key) < tonumber(ARGV[6]) then
    redis.call("PEXPIRE", index_key, ARGV[6])
  end
  exp_out = ARGV[4]
end
return {4, fields[1], fields[3], exp_out}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "rev") == "1" then
  return 1
end
redis.call("HSET", KEYS[1], "rev", "1")
return 2
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisStore keeps each session in a hash whose key expires at the
// session's refresh expiry, plus a per-subject set of session ids.
//
//	Keys: <prefix>:s:<sessionID> (hash), <prefix>:u:<subject> (set)
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a session store on client. prefix defaults to "as".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) subjectPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) subjectKey(subject string) string {
	return s.subjectPrefix() + subject
}

// Create stores a new session and indexes it under its subject.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	ttl := sess.RefreshExpiresAt.Sub(sess.IssuedAt)

	created, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.SessionID), s.subjectKey(sess.Subject)},
		sess.Subject,
		sess.RefreshTokenID,
		formatMillis(sess.IssuedAt),
		formatMillis(sess.RefreshExpiresAt),
		sess.SessionID,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return ErrExists
	}
	return nil
}

// Get reads the full record.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	iat, err := parseMillis(fields["iat"])
	if err != nil {
		return nil, err
	}
	exp, err := parseMillis(fields["exp"])
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionID:        sessionID,
		Subject:          fields["sub"],
		RefreshTokenID:   fields["rid"],
		IssuedAt:         iat,
		RefreshExpiresAt: exp,
		Revoked:          fields["rev"] == "1",
	}, nil
}

// Rotate performs the refresh id compare-and-swap inside one Lua script.
//
//	Performance: 1 Lua EVALSHA.
//	Security: of concurrent rotations presenting the same id, one wins.
func (s *RedisStore) Rotate(ctx context.Context, req RotateRequest) (*Session, error) {
	nextExp := "0"
	var ttl int64
	if !req.NextExpiresAt.IsZero() {
		nextExp = formatMillis(req.NextExpiresAt)
		ttl = req.NextExpiresAt.Sub(req.Now).Milliseconds()
		if ttl <= 0 {
			return nil, ErrExpired
		}
	}

	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(req.SessionID)},
		req.ExpectedID,
		req.NextID,
		formatMillis(req.Now),
		nextExp,
		s.subjectPrefix(),
		ttl,
		req.ExpectedSubject,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusMismatch:
		return nil, ErrRefreshIDMismatch
	case rotateStatusSubject:
		return nil, ErrSubjectMismatch
	case rotateStatusRotated:
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}
		subject, _ := parts[1].(string)
		iatRaw, _ := parts[2].(string)
		expRaw, _ := parts[3].(string)
		iat, err := parseMillis(iatRaw)
		if err != nil {
			return nil, err
		}
		exp, err := parseMillis(expRaw)
		if err != nil {
			return nil, err
		}
		return &Session{
			SessionID:        req.SessionID,
			Subject:          subject,
			RefreshTokenID:   req.NextID,
			IssuedAt:         iat,
			RefreshExpiresAt: exp,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Revoke flags the record revoked and keeps it until its key expires.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string) (bool, error) {
	code, err := revokeSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch code {
	case 0:
		return false, ErrNotFound
	case 1:
		return false, nil
	default:
		return true, nil
	}
}

// RevokeAllForSubject revokes every session in the subject's index and
// drops index entries whose record already expired.
//
// The index is read once; a session created concurrently with this call may
// be missed.
func (s *RedisStore) RevokeAllForSubject(ctx context.Context, subject string) ([]string, error) {
	subjectKey := s.subjectKey(subject)
	sessionIDs, err := s.redis.SMembers(ctx, subjectKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := make([]string, 0, len(sessionIDs))
	stale := make([]interface{}, 0)
	for _, sessionID := range sessionIDs {
		if _, err := s.Revoke(ctx, sessionID); err != nil {
			if errors.Is(err, ErrNotFound) {
				stale = append(stale, sessionID)
				continue
			}
			return revoked, err
		}
		revoked = append(revoked, sessionID)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, subjectKey, stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return revoked, nil
}

// SweepExpired reports 0: Redis key expiry removes stale sessions.
func (s *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping measures round-trip latency to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt session timestamp %q", ErrRedisUnavailable, raw)
	}
	return time.UnixMilli(ms), nil
}
