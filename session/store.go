package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when no record exists (never issued or reaped).
	ErrNotFound = errors.New("session not found")
	// ErrRevoked is returned when the record exists but is no longer active.
	ErrRevoked = errors.New("session revoked")
	// ErrExpired is returned when an active record is past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrDuplicateRefresh is returned by Save when the refresh hash is taken.
	ErrDuplicateRefresh = errors.New("refresh hash already bound to a session")
)

const (
	consumeNotFound int64 = 0
	consumeRevoked  int64 = 1
	consumeExpired  int64 = 2
	consumeOK       int64 = 3
)

// KEYS[1] = session hash, KEYS[2] = refresh index, KEYS[3] = jti index, KEYS[4] = credential set
// ARGV[1] = session id, ARGV[2] = ttl ms, ARGV[3..] = hash field/value pairs
var saveLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[3], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[4], ARGV[1])
if redis.call('PTTL', KEYS[4]) < tonumber(ARGV[2]) then
  redis.call('PEXPIRE', KEYS[4], ARGV[2])
end
return 1
`)

// KEYS[1] = refresh index
// ARGV[1] = session key prefix, ARGV[2] = credential set prefix, ARGV[3] = now ms
var consumeLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
  return {0}
end
local skey = ARGV[1] .. id
local vals = redis.call('HMGET', skey, 'active', 'expires', 'cid')
if not vals[3] then
  return {0}
end
if vals[1] ~= '1' then
  return {1}
end
redis.call('HSET', skey, 'active', '0', 'last', ARGV[3])
redis.call('SREM', ARGV[2] .. vals[3], id)
if tonumber(ARGV[3]) >= tonumber(vals[2]) then
  return {2}
end
return {3, redis.call('HGETALL', skey)}
`)

// KEYS[1] = session hash
// ARGV[1] = credential set prefix, ARGV[2] = now ms
var revokeLua = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'active', 'cid', 'id')
if not vals[3] or vals[1] ~= '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'active', '0', 'last', ARGV[2])
redis.call('SREM', ARGV[1] .. vals[2], vals[3])
return 1
`)

// Store persists sessions in Redis hashes with secondary indexes by refresh
// hash, access jti and credential. Records expire with their refresh token.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store]. prefix sets the key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "oss"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionPrefix() string    { return s.prefix + ":s:" }
func (s *Store) credentialPrefix() string { return s.prefix + ":u:" }

func (s *Store) key(id string) string            { return s.sessionPrefix() + id }
func (s *Store) refreshKey(hash string) string   { return s.prefix + ":rh:" + hash }
func (s *Store) jtiKey(jti string) string        { return s.prefix + ":jti:" + jti }
func (s *Store) credentialKey(cid string) string { return s.credentialPrefix() + cid }

// Save stores a new active session. Its lifetime is ExpiresAt - CreatedAt.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt)
	if ttl <= 0 {
		return errors.New("session expiry must be after creation")
	}

	args := append([]interface{}{sess.ID, ttl.Milliseconds()}, sess.fields()...)
	ok, err := saveLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.ID), s.refreshKey(sess.RefreshHash), s.jtiKey(sess.AccessJTI), s.credentialKey(sess.CredentialID)},
		args...,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok == 0 {
		return ErrDuplicateRefresh
	}
	return nil
}

// Consume atomically deactivates the session bound to refreshHash and returns
// it. Exactly one concurrent caller can consume a given session.
func (s *Store) Consume(ctx context.Context, refreshHash string, now time.Time) (*Session, error) {
	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(refreshHash)},
		s.sessionPrefix(),
		s.credentialPrefix(),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}

	code, _ := result[0].(int64)
	switch code {
	case consumeNotFound:
		return nil, ErrNotFound
	case consumeRevoked:
		return nil, ErrRevoked
	case consumeExpired:
		return nil, ErrExpired
	case consumeOK:
		if len(result) < 2 {
			return nil, fmt.Errorf("%w: missing session payload", ErrRedisUnavailable)
		}
		flat, _ := result[1].([]interface{})
		sess, ok := decodeSession(pairsToMap(flat))
		if !ok {
			return nil, fmt.Errorf("%w: corrupt session record", ErrRedisUnavailable)
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown consume status", ErrRedisUnavailable)
	}
}

// Get returns a session by id, active or not.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, ok := decodeSession(m)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// GetByJTI resolves the session bound to an access token id.
func (s *Store) GetByJTI(ctx context.Context, jti string) (*Session, error) {
	id, err := s.redis.Get(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, id)
}

// Revoke deactivates a session. It reports false if the session was already
// inactive or missing.
func (s *Store) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.key(id)}, s.credentialPrefix(), now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RevokeByJTI deactivates the session bound to an access token id.
func (s *Store) RevokeByJTI(ctx context.Context, jti string, now time.Time) (bool, error) {
	id, err := s.redis.Get(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Revoke(ctx, id, now)
}

// RevokeAll deactivates every active session of a credential and returns how
// many were revoked.
func (s *Store) RevokeAll(ctx context.Context, credentialID string, now time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.credentialKey(credentialID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var revoked int
	for _, id := range ids {
		ok, err := s.Revoke(ctx, id, now)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}

	if err := s.redis.Del(ctx, s.credentialKey(credentialID)).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return revoked, nil
}

// ListActive returns the credential's active, unexpired sessions.
func (s *Store) ListActive(ctx context.Context, credentialID string, now time.Time) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.credentialKey(credentialID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	for _, cmd := range cmds {
		sess, ok := decodeSession(cmd.Val())
		if !ok || !sess.Active || !now.Before(sess.ExpiresAt) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}
