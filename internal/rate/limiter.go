package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionOTPRequest          Action = "otp_request"
	ActionLoginAttempt        Action = "login_attempt"
	ActionSignupAttempt       Action = "signup_attempt"
	ActionVerificationAttempt Action = "verification_attempt"
)

// IdentifierType qualifies the identifier a counter is keyed by.
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierPhone IdentifierType = "phone"
	IdentifierIP    IdentifierType = "ip"
)

// Policy bounds an action to MaxAttempts per Window.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultPolicies returns the built-in per-action policies.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionOTPRequest:          {MaxAttempts: 3, Window: 60 * time.Minute},
		ActionLoginAttempt:        {MaxAttempts: 5, Window: 15 * time.Minute},
		ActionSignupAttempt:       {MaxAttempts: 3, Window: 60 * time.Minute},
		ActionVerificationAttempt: {MaxAttempts: 10, Window: 5 * time.Minute},
	}
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix   string
	Policies map[Action]Policy
	Clock    func() time.Time
}

// Decision is the result of a single Check.
type Decision struct {
	Allowed      bool
	Remaining    int
	BlockedUntil time.Time
}

// Limiter enforces per-(identifier, type, action) windows using one Redis
// hash per key. Check is a single Lua script, so concurrent callers on the
// same key never over-admit.
type Limiter struct {
	redis    redis.UniversalClient
	prefix   string
	policies map[Action]Policy
	now      func() time.Time
}

// KEYS[1] = counter hash
// ARGV[1] = now (unix ms), ARGV[2] = window (ms), ARGV[3] = max attempts
//
// Returns {allowed, remaining, blocked_until_ms}.
var checkLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local vals = redis.call('HMGET', KEYS[1], 'count', 'ws', 'bu')
local count = tonumber(vals[1])
local ws = tonumber(vals[2])
local bu = tonumber(vals[3]) or 0

local function fresh()
  redis.call('HSET', KEYS[1], 'count', 1, 'ws', now, 'bu', 0)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, max - 1, 0}
end

if count == nil or ws == nil then
  return fresh()
end

if bu > now then
  return {0, 0, bu}
end

if now - ws >= window then
  return fresh()
end

if count >= max then
  local blocked = ws + window
  redis.call('HSET', KEYS[1], 'bu', blocked)
  local ttl = blocked - now
  if ttl < 1 then ttl = 1 end
  redis.call('PEXPIRE', KEYS[1], ttl)
  return {0, 0, blocked}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, max - count, 0}
`)

// New creates a [Limiter]. Missing policies fall back to [DefaultPolicies].
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	policies := DefaultPolicies()
	for action, p := range cfg.Policies {
		policies[action] = p
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "orl"
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		redis:    redisClient,
		prefix:   prefix,
		policies: policies,
		now:      now,
	}
}

// Policy returns the policy applied to action.
func (l *Limiter) Policy(action Action) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}

// Check records one attempt of action by identifier and reports whether it
// is admitted.
func (l *Limiter) Check(ctx context.Context, identifier string, idType IdentifierType, action Action) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok || policy.MaxAttempts <= 0 || policy.Window <= 0 {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	res, err := checkLua.Run(
		ctx,
		l.redis,
		[]string{l.key(identifier, idType, action)},
		l.now().UnixMilli(),
		policy.Window.Milliseconds(),
		policy.MaxAttempts,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: invalid rate script response", ErrRedisUnavailable)
	}

	d := Decision{Allowed: res[0] == 1, Remaining: int(res[1])}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if res[2] > 0 {
		d.BlockedUntil = time.UnixMilli(res[2])
	}
	return d, nil
}

// Reset clears the counter for identifier and action.
func (l *Limiter) Reset(ctx context.Context, identifier string, idType IdentifierType, action Action) error {
	if err := l.redis.Del(ctx, l.key(identifier, idType, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(identifier string, idType IdentifierType, action Action) string {
	return l.prefix + ":" + string(action) + ":" + string(idType) + ":" + strconv.Quote(identifier)
}
