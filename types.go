package otpAuth

import (
	"time"

	"github.com/MrEthical07/otpAuth/otp"
)

// Purpose scopes an OTP challenge.
type Purpose = otp.Purpose

const (
	PurposeSignup        = otp.PurposeSignup
	PurposeLogin         = otp.PurposeLogin
	PurposePasswordReset = otp.PurposePasswordReset
)

// Status is the coarse outcome of a flow step.
type Status string

const (
	// StatusPendingVerification means an OTP was issued and must be confirmed.
	StatusPendingVerification Status = "pending_verification"
	// StatusAuthenticated means tokens were issued.
	StatusAuthenticated Status = "authenticated"
	// StatusSent is returned by resend and reset requests regardless of
	// whether the identifier exists.
	StatusSent Status = "sent"
)

// Profile is optional signup data.
type Profile struct {
	Name string
	// Role must be one of Signup.AllowedRoles; empty selects Signup.DefaultRole.
	Role string
	// RequireStepUp forces an OTP on every login for this credential.
	RequireStepUp bool
}

// SignupResult is returned by Signup.
type SignupResult struct {
	Status             Status
	CredentialID       string
	ChallengeExpiresAt time.Time
}

// LoginResult is returned by Login. Tokens is set only when Status is
// StatusAuthenticated; Purpose only when it is StatusPendingVerification.
type LoginResult struct {
	Status             Status
	CredentialID       string
	Purpose            Purpose
	ChallengeExpiresAt time.Time
	Tokens             *TokenPair
}

// ResendResult is returned by ResendOTP and RequestPasswordReset.
type ResendResult struct {
	Status Status
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	CredentialID string
	Role         string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// SessionInfo describes one active refresh session.
type SessionInfo struct {
	ID             string
	CredentialID   string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
}
