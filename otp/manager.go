package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 32

var (
	// ErrRedisUnavailable wraps any storage failure.
	ErrRedisUnavailable = errors.New("otp redis unavailable")
	// ErrNotFound is returned by Latest when no trusted challenge exists.
	ErrNotFound = errors.New("otp challenge not found")
	// ErrInvalidPurpose is returned for unknown purposes.
	ErrInvalidPurpose = errors.New("invalid otp purpose")
)

// Config controls code shape, lifetime and attempt budget.
type Config struct {
	Prefix      string
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	HashKey     []byte
	// Retention keeps terminal challenges readable past expiry before Redis
	// reaps them.
	Retention time.Duration
	Clock     func() time.Time
}

// IssueRequest describes a new challenge.
type IssueRequest struct {
	CredentialID string
	Purpose      Purpose
	IP           string
	UserAgent    string
}

// Issued carries the plaintext code back to the caller exactly once.
type Issued struct {
	ChallengeID string
	Code        string
	ExpiresAt   time.Time
}

// Manager issues and verifies challenges stored in Redis. The most recently
// issued challenge per (credential, purpose) is the only one Verify reads.
type Manager struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(redisClient redis.UniversalClient, cfg Config) (*Manager, error) {
	if redisClient == nil {
		return nil, errors.New("otp manager requires redis client")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("otp TTL must be > 0")
	}
	if cfg.Digits < minDigits || cfg.Digits > maxDigits {
		return nil, errors.New("otp digits must be between 6 and 10")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("otp max attempts must be > 0")
	}
	if len(cfg.HashKey) < 32 {
		return nil, errors.New("otp hash key must be at least 32 bytes")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "otp"
	}
	if cfg.Retention < 0 {
		return nil, errors.New("otp retention must be >= 0")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{redis: redisClient, cfg: cfg, now: now}, nil
}

func (m *Manager) challengeKey(id string) string {
	return m.cfg.Prefix + ":c:" + id
}

func (m *Manager) latestKey(credentialID string, purpose Purpose) string {
	return m.cfg.Prefix + ":l:" + credentialID + ":" + string(purpose)
}

// Issue creates a fresh challenge and makes it the trusted one for
// (credential, purpose). Earlier challenges stay readable until reaped but
// are never verified again.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (Issued, error) {
	if !req.Purpose.Valid() {
		return Issued{}, ErrInvalidPurpose
	}

	code, err := GenerateCode(m.cfg.Digits)
	if err != nil {
		return Issued{}, err
	}

	now := m.now()
	ch := &Challenge{
		ID:           ulid.Make().String(),
		CredentialID: req.CredentialID,
		Purpose:      req.Purpose,
		CodeHash:     HashCode(m.cfg.HashKey, req.CredentialID, code),
		State:        StatePending,
		MaxAttempts:  m.cfg.MaxAttempts,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.TTL),
		IP:           req.IP,
		UserAgent:    req.UserAgent,
	}

	keep := m.cfg.TTL + m.cfg.Retention
	key := m.challengeKey(ch.ID)
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, ch.fields())
		pipe.PExpire(ctx, key, keep)
		pipe.Set(ctx, m.latestKey(req.CredentialID, req.Purpose), ch.ID, keep)
		return nil
	})
	if err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Issued{ChallengeID: ch.ID, Code: code, ExpiresAt: ch.ExpiresAt}, nil
}

// Latest returns the trusted challenge for (credential, purpose).
func (m *Manager) Latest(ctx context.Context, credentialID string, purpose Purpose) (*Challenge, error) {
	id, err := m.redis.Get(ctx, m.latestKey(credentialID, purpose)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	fields, err := m.redis.HGetAll(ctx, m.challengeKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ch, ok := decodeChallenge(fields)
	if !ok {
		return nil, ErrNotFound
	}
	return ch, nil
}

// Verify checks input against the trusted challenge. The returned error is
// non-nil only for storage failures; every authentication outcome is carried
// in Result.Outcome.
//
// Each evaluated call, successful or not, consumes exactly one attempt. Calls
// rejected before evaluation (no challenge, already terminal, past expiry)
// consume none.
func (m *Manager) Verify(ctx context.Context, credentialID string, purpose Purpose, input string) (Result, error) {
	if !purpose.Valid() {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	pointer := m.latestKey(credentialID, purpose)
	for i := 0; i < maxTxRetries; i++ {
		var res Result
		err := m.redis.Watch(ctx, func(tx *redis.Tx) error {
			id, err := tx.Get(ctx, pointer).Result()
			if errors.Is(err, redis.Nil) {
				res = Result{Outcome: OutcomeNotFound}
				return nil
			}
			if err != nil {
				return err
			}

			key := m.challengeKey(id)
			if err := tx.Watch(ctx, key).Err(); err != nil {
				return err
			}
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			ch, ok := decodeChallenge(fields)
			if !ok || ch.CredentialID != credentialID {
				res = Result{Outcome: OutcomeNotFound}
				return nil
			}

			var changed bool
			res, changed = m.evaluate(ch, input, m.now())
			if !changed {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				update := map[string]interface{}{
					"state":    string(ch.State),
					"attempts": ch.Attempts,
				}
				if !ch.VerifiedAt.IsZero() {
					update["verified"] = ch.VerifiedAt.UnixMilli()
				}
				pipe.HSet(ctx, key, update)
				return nil
			})
			return err
		}, pointer)

		if err == nil {
			return res, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Result{}, fmt.Errorf("%w: verification contention", ErrRedisUnavailable)
}

// evaluate applies one verification to ch in place and reports whether ch
// must be written back.
func (m *Manager) evaluate(ch *Challenge, input string, now time.Time) (Result, bool) {
	res := Result{ChallengeID: ch.ID, Attempts: ch.Attempts}

	switch ch.State {
	case StateVerified:
		res.Outcome = OutcomeNotFound
		return res, false
	case StateExhausted:
		res.Outcome = OutcomeAttemptsExceeded
		return res, false
	case StateExpired:
		res.Outcome = OutcomeExpired
		return res, false
	case StatePending:
	default:
		res.Outcome = OutcomeNotFound
		return res, false
	}

	if !now.Before(ch.ExpiresAt) {
		ch.State = StateExpired
		res.Outcome = OutcomeExpired
		return res, true
	}
	if ch.Attempts >= ch.MaxAttempts {
		ch.State = StateExhausted
		res.Outcome = OutcomeAttemptsExceeded
		return res, true
	}

	ch.Attempts++
	res.Attempts = ch.Attempts

	switch {
	case VerifyCode(m.cfg.HashKey, ch.CredentialID, input, ch.CodeHash):
		ch.State = StateVerified
		ch.VerifiedAt = now
		res.Outcome = OutcomeSuccess
	case ch.Attempts >= ch.MaxAttempts:
		ch.State = StateExhausted
		res.Outcome = OutcomeAttemptsExceeded
	default:
		res.Outcome = OutcomeMismatch
		res.Remaining = ch.MaxAttempts - ch.Attempts
	}
	return res, true
}
