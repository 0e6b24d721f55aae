package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no credential matches.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate is returned when the email or phone is already registered.
	ErrDuplicate = errors.New("credential already exists")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("credential store unavailable")
)

// Credential is one identity: an email and/or phone bound to a password hash.
type Credential struct {
	ID               string
	Email            string
	Phone            string
	Name             string
	PasswordHash     string
	Role             string
	Active           bool
	Verified         bool
	StepUpRequired   bool
	FailedLoginCount int
	LockoutUntil     time.Time
	LastLoginAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Locked reports whether the credential is inside a lockout window at now.
func (c *Credential) Locked(now time.Time) bool {
	return !c.LockoutUntil.IsZero() && now.Before(c.LockoutUntil)
}

// FailureResult is the state after a recorded login failure.
type FailureResult struct {
	Count        int
	Locked       bool
	LockoutUntil time.Time
}

// Store persists credentials. Implementations must make RecordLoginFailure
// a single atomic update so concurrent failures are all counted.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	GetByID(ctx context.Context, id string) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	GetByPhone(ctx context.Context, phone string) (*Credential, error)

	// RecordLoginFailure increments the failure counter. When it reaches
	// threshold the credential is locked until now+lockout and the counter
	// restarts from zero.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockout time.Duration, now time.Time) (FailureResult, error)
	// RecordLoginSuccess clears failures and lockout and stamps last login.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	MarkVerified(ctx context.Context, id string, now time.Time) error
	// UpdatePasswordHash replaces the hash. clearLockout also resets the
	// failure counter and lockout window.
	UpdatePasswordHash(ctx context.Context, id, hash string, clearLockout bool, now time.Time) error
	Deactivate(ctx context.Context, id string, now time.Time) error
}
