package otpAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/rate"
)

// Signup registers an unverified credential and sends a signup OTP to the
// identifier. The credential becomes usable once VerifyOTP confirms the
// code with PurposeSignup.
//
// Errors: ErrValidationFailed, ErrRateLimited, ErrAlreadyExists,
// ErrStoreUnavailable.
func (e *Engine) Signup(ctx context.Context, rawIdentifier, plaintext string, profile Profile) (*SignupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.checkRate(ctx, id, rate.ActionSignupAttempt); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventSignupRateLimited, MetricSignupRateLimited, auditActor{}, rl)
			return nil, err
		}
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.validatePassword(plaintext); err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	role := profile.Role
	if role == "" {
		role = e.config.Signup.DefaultRole
	}
	if !containsString(e.config.Signup.AllowedRoles, role) {
		err := &ValidationError{Field: "role", Reasons: []string{"not allowed"}}
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	now := e.now()
	cred := &credential.Credential{
		Name:           profile.Name,
		PasswordHash:   hash,
		Role:           role,
		Active:         true,
		StepUpRequired: profile.RequireStepUp,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if id.kind == identifierPhone {
		cred.Phone = id.value
	} else {
		cred.Email = id.value
	}

	if err := e.credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, auditActor{}, ErrAlreadyExists, nil)
			return nil, ErrAlreadyExists
		}
		err = storeErr(err)
		e.emitAudit(ctx, auditEventSignupFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	actor := auditActor{id: cred.ID, role: cred.Role}
	issued, err := e.issueChallenge(ctx, cred, id, PurposeSignup)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, actor, err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, actor, nil, func() map[string]string {
		return map[string]string{"channel": string(id.channel())}
	})

	return &SignupResult{
		Status:             StatusPendingVerification,
		CredentialID:       cred.ID,
		ChallengeExpiresAt: issued.ExpiresAt,
	}, nil
}
