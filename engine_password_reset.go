package otpAuth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/otp"
)

// RequestPasswordReset sends a password reset code. It returns StatusSent
// for unknown and inactive identifiers too.
func (e *Engine) RequestPasswordReset(ctx context.Context, rawIdentifier string) (*ResendResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.checkRate(ctx, id, rate.ActionOTPRequest); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventPasswordResetLimited, MetricRateLimitHit, auditActor{}, rl)
			return nil, err
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, auditActor{}, err, nil)
		return nil, err
	}

	sent := &ResendResult{Status: StatusSent}
	e.metricInc(MetricPasswordResetRequest)

	cred, err := e.lookup(ctx, id)
	if err == nil && !cred.Active {
		err = credential.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, auditActor{}, nil, resendMeta(PurposePasswordReset, false))
			return sent, nil
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, auditActor{}, err, nil)
		return nil, err
	}
	actor := auditActor{id: cred.ID, role: cred.Role}

	if _, err := e.issueChallenge(ctx, cred, id, PurposePasswordReset); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, actor, err, nil)
		return nil, err
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, actor, nil, resendMeta(PurposePasswordReset, true))
	return sent, nil
}

// ConfirmPasswordReset checks a reset code and replaces the password. On
// success any lockout is cleared and every session of the credential is
// revoked. No tokens are issued; the caller logs in again.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawIdentifier, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err != nil {
		return e.resetFailed(ctx, auditActor{}, err)
	}

	if err := e.checkRate(ctx, id, rate.ActionVerificationAttempt); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventPasswordResetLimited, MetricPasswordResetConfirmFailure, auditActor{}, rl)
			return err
		}
		return e.resetFailed(ctx, auditActor{}, err)
	}

	// Policy first so a weak password does not spend an attempt.
	if err := e.validatePassword(newPassword); err != nil {
		return e.resetFailed(ctx, auditActor{}, err)
	}

	cred, err := e.lookup(ctx, id)
	if err == nil && !cred.Active {
		err = credential.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			err = ErrOTPNotFound
		}
		return e.resetFailed(ctx, auditActor{}, err)
	}
	actor := auditActor{id: cred.ID, role: cred.Role}

	res, err := e.otp.Verify(ctx, cred.ID, PurposePasswordReset, code)
	if err != nil {
		return e.resetFailed(ctx, actor, storeErr(err))
	}
	if res.Outcome != otp.OutcomeSuccess {
		return e.resetFailed(ctx, actor, e.otpFailure(res))
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.resetFailed(ctx, actor, err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, cred.ID, hash, true, e.now()); err != nil {
		return e.resetFailed(ctx, actor, storeErr(err))
	}

	n, err := e.tokens.RevokeAll(ctx, cred.ID)
	if err != nil {
		return e.resetFailed(ctx, actor, storeErr(err))
	}
	e.resetRate(ctx, id, rate.ActionLoginAttempt)

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, actor, nil, func() map[string]string {
		return map[string]string{
			"challenge_id":     res.ChallengeID,
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, actor auditActor, err error) error {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetFailure, false, actor, err, nil)
	return err
}
