package otpAuth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/otp"
	"go.uber.org/zap"
)

// VerifyOTP confirms a signup or login challenge and issues tokens. A
// confirmed signup challenge marks the credential verified.
//
// Password reset codes are confirmed through ConfirmPasswordReset instead.
func (e *Engine) VerifyOTP(ctx context.Context, rawIdentifier string, purpose Purpose, code string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err == nil && purpose != PurposeSignup && purpose != PurposeLogin {
		err = &ValidationError{Field: "purpose", Reasons: []string{"must be signup or login"}}
	}
	if err != nil {
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.checkRate(ctx, id, rate.ActionVerificationAttempt); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventOTPVerifyRateLimited, MetricRateLimitHit, auditActor{}, rl)
			return nil, err
		}
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	cred, err := e.lookup(ctx, id)
	if err == nil && !cred.Active {
		err = credential.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metricInc(MetricOTPVerifyFailure)
			err = ErrOTPNotFound
		}
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, auditActor{}, err, purposeMeta(purpose))
		return nil, err
	}
	actor := auditActor{id: cred.ID, role: cred.Role}

	res, err := e.otp.Verify(ctx, cred.ID, purpose, code)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, actor, err, purposeMeta(purpose))
		return nil, err
	}
	if res.Outcome != otp.OutcomeSuccess {
		err := e.otpFailure(res)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, actor, err, purposeMeta(purpose))
		return nil, err
	}

	now := e.now()
	if purpose == PurposeSignup && !cred.Verified {
		if err := e.credentials.MarkVerified(ctx, cred.ID, now); err != nil {
			err = storeErr(err)
			e.emitAudit(ctx, auditEventOTPVerifyFailure, false, actor, err, purposeMeta(purpose))
			return nil, err
		}
		cred.Verified = true
	}
	if err := e.credentials.RecordLoginSuccess(ctx, cred.ID, now); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, actor, err, purposeMeta(purpose))
		return nil, err
	}

	pair, err := e.issueTokens(ctx, cred)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, actor, err, purposeMeta(purpose))
		return nil, err
	}
	e.resetRate(ctx, id, rate.ActionLoginAttempt)

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, actor, nil, func() map[string]string {
		return map[string]string{
			"purpose":      string(purpose),
			"challenge_id": res.ChallengeID,
			"session_id":   pair.SessionID,
		}
	})
	return pair, nil
}

// ResendOTP issues a fresh code for purpose, superseding the previous one.
// The result is StatusSent whether or not anything was issued, so callers
// cannot learn which identifiers exist. A login or password reset code is
// only resent while the challenge from the earlier step is still pending.
func (e *Engine) ResendOTP(ctx context.Context, rawIdentifier string, purpose Purpose) (*ResendResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err == nil && !purpose.Valid() {
		err = &ValidationError{Field: "purpose", Reasons: []string{"unknown"}}
	}
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResend, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.checkRate(ctx, id, rate.ActionOTPRequest); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventOTPResendRateLimited, MetricRateLimitHit, auditActor{}, rl)
			return nil, err
		}
		e.emitAudit(ctx, auditEventOTPResend, false, auditActor{}, err, nil)
		return nil, err
	}

	sent := &ResendResult{Status: StatusSent}

	cred, err := e.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.emitAudit(ctx, auditEventOTPResend, true, auditActor{}, nil, resendMeta(purpose, false))
			return sent, nil
		}
		e.emitAudit(ctx, auditEventOTPResend, false, auditActor{}, err, nil)
		return nil, err
	}
	actor := auditActor{id: cred.ID, role: cred.Role}

	eligible, err := e.resendEligible(ctx, cred, purpose)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResend, false, actor, err, nil)
		return nil, err
	}
	if !eligible {
		e.emitAudit(ctx, auditEventOTPResend, true, actor, nil, resendMeta(purpose, false))
		return sent, nil
	}

	if _, err := e.issueChallenge(ctx, cred, id, purpose); err != nil {
		e.emitAudit(ctx, auditEventOTPResend, false, actor, err, nil)
		return nil, err
	}
	e.metricInc(MetricOTPResend)
	e.emitAudit(ctx, auditEventOTPResend, true, actor, nil, resendMeta(purpose, true))
	return sent, nil
}

func (e *Engine) resendEligible(ctx context.Context, cred *credential.Credential, purpose Purpose) (bool, error) {
	if !cred.Active {
		return false, nil
	}
	if purpose == PurposeSignup {
		return !cred.Verified, nil
	}

	ch, err := e.otp.Latest(ctx, cred.ID, purpose)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}
	// Only a live challenge may be reissued. Once it is consumed, exhausted
	// or expired, a new code requires the password step again.
	if ch.State != otp.StatePending || !e.now().Before(ch.ExpiresAt) {
		e.logger.Debug("resend skipped for closed challenge",
			zap.String("credential_id", cred.ID),
			zap.String("purpose", string(purpose)),
			zap.String("state", string(ch.State)),
		)
		return false, nil
	}
	return true, nil
}

func purposeMeta(purpose Purpose) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"purpose": string(purpose)}
	}
}

func resendMeta(purpose Purpose, issued bool) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
			"issued":  strconv.FormatBool(issued),
		}
	}
}
