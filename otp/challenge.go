package otp

import (
	"strconv"
	"time"
)

// Purpose scopes a challenge to one flow.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeSignup, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}

// State is the lifecycle position of a challenge. Every state other than
// StatePending is terminal.
type State string

const (
	StatePending   State = "pending"
	StateVerified  State = "verified"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// Outcome tags the result of a verification.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeExpired          Outcome = "expired"
	OutcomeAttemptsExceeded Outcome = "attempts_exceeded"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomeNotFound         Outcome = "not_found"
)

// Result is returned by Verify. Remaining is only set for OutcomeMismatch.
type Result struct {
	Outcome     Outcome
	ChallengeID string
	Attempts    int
	Remaining   int
}

// Challenge is the persisted record. The plaintext code is never stored.
type Challenge struct {
	ID           string
	CredentialID string
	Purpose      Purpose
	CodeHash     string
	State        State
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	VerifiedAt   time.Time
	IP           string
	UserAgent    string
}

func (c *Challenge) fields() map[string]interface{} {
	f := map[string]interface{}{
		"id":       c.ID,
		"cid":      c.CredentialID,
		"purpose":  string(c.Purpose),
		"hash":     c.CodeHash,
		"state":    string(c.State),
		"attempts": c.Attempts,
		"max":      c.MaxAttempts,
		"created":  c.CreatedAt.UnixMilli(),
		"expires":  c.ExpiresAt.UnixMilli(),
		"verified": int64(0),
		"ip":       c.IP,
		"ua":       c.UserAgent,
	}
	if !c.VerifiedAt.IsZero() {
		f["verified"] = c.VerifiedAt.UnixMilli()
	}
	return f
}

func decodeChallenge(m map[string]string) (*Challenge, bool) {
	if len(m) == 0 || m["id"] == "" || m["hash"] == "" {
		return nil, false
	}

	attempts, err1 := strconv.Atoi(m["attempts"])
	maxAttempts, err2 := strconv.Atoi(m["max"])
	created, err3 := strconv.ParseInt(m["created"], 10, 64)
	expires, err4 := strconv.ParseInt(m["expires"], 10, 64)
	verified, err5 := strconv.ParseInt(m["verified"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil, false
	}

	c := &Challenge{
		ID:           m["id"],
		CredentialID: m["cid"],
		Purpose:      Purpose(m["purpose"]),
		CodeHash:     m["hash"],
		State:        State(m["state"]),
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		CreatedAt:    time.UnixMilli(created),
		ExpiresAt:    time.UnixMilli(expires),
		IP:           m["ip"],
		UserAgent:    m["ua"],
	}
	if verified > 0 {
		c.VerifiedAt = time.UnixMilli(verified)
	}
	return c, true
}
