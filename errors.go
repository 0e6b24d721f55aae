package otpAuth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when an action exceeds its window. The
	// concrete error is *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountLocked is returned while a credential is inside its lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials covers unknown identifiers, wrong passwords and
	// inactive credentials alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyExists is returned by Signup for a registered identifier.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrOTPExpired is returned when the trusted challenge is past its TTL.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPAttemptsExceeded is returned once a challenge is exhausted.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrOTPMismatch is returned for a wrong code. The concrete error is
	// *OTPMismatchError.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPNotFound is returned when no pending challenge exists.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrTokenExpired is returned for an expired access or refresh token.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for a consumed, revoked or unknown refresh token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenTypeMismatch is returned when an access token is used as a
	// refresh token or the other way around.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrTokenInvalid is returned for malformed or badly signed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrValidationFailed is returned for malformed input or a password
	// policy violation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError carries the action that was denied and when it reopens.
type RateLimitError struct {
	Action       string
	Remaining    int
	BlockedUntil time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s blocked until %s", e.Action, e.BlockedUntil.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter returns how long the caller should wait from now.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	if d := e.BlockedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

// OTPMismatchError carries the attempts left on the challenge.
type OTPMismatchError struct {
	Remaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("otp mismatch: %d attempts remaining", e.Remaining)
}

func (e *OTPMismatchError) Is(target error) bool { return target == ErrOTPMismatch }

// ValidationError lists what was wrong with the input.
type ValidationError struct {
	Field   string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "validation failed: " + e.Field
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Reasons)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
