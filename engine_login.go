package otpAuth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"go.uber.org/zap"
)

// Login checks a password. When the credential is unverified or step-up is
// required, the result is StatusPendingVerification and an OTP has been
// sent; otherwise tokens are issued directly.
//
// Unknown identifiers, wrong passwords and inactive credentials all return
// ErrInvalidCredentials after comparable work.
func (e *Engine) Login(ctx context.Context, rawIdentifier, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	id, err := normalizeIdentifier(rawIdentifier)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	if err := e.checkRate(ctx, id, rate.ActionLoginAttempt); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.emitRateLimited(ctx, auditEventLoginRateLimited, MetricLoginRateLimited, auditActor{}, rl)
			return nil, err
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, auditActor{}, err, nil)
		return nil, err
	}

	cred, err := e.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.hasher.Burn(plaintext)
			return nil, e.loginFailed(ctx, auditActor{}, ErrInvalidCredentials, nil)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, auditActor{}, err, nil)
		return nil, err
	}
	actor := auditActor{id: cred.ID, role: cred.Role}

	if !cred.Active {
		e.hasher.Burn(plaintext)
		return nil, e.loginFailed(ctx, actor, ErrInvalidCredentials, map[string]string{"reason": "inactive"})
	}

	now := e.now()
	if cred.Locked(now) {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, actor, ErrAccountLocked, func() map[string]string {
			return map[string]string{"lockout_until": cred.LockoutUntil.UTC().Format(auditTimeFormat)}
		})
		return nil, ErrAccountLocked
	}

	verdict := e.hasher.Verify(plaintext, cred.PasswordHash)
	if !verdict.Match {
		return nil, e.passwordFailed(ctx, cred, actor)
	}

	if verdict.NeedsRehash && e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, cred.ID, plaintext)
	}

	if purpose, stepUp := e.stepUpPurpose(cred); stepUp {
		issued, err := e.issueChallenge(ctx, cred, id, purpose)
		if err != nil {
			e.emitAudit(ctx, auditEventLoginFailure, false, actor, err, nil)
			return nil, err
		}
		e.metricInc(MetricLoginStepUpRequired)
		e.emitAudit(ctx, auditEventLoginStepUpRequired, true, actor, nil, func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
		return &LoginResult{
			Status:             StatusPendingVerification,
			CredentialID:       cred.ID,
			Purpose:            purpose,
			ChallengeExpiresAt: issued.ExpiresAt,
		}, nil
	}

	if err := e.credentials.RecordLoginSuccess(ctx, cred.ID, now); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLoginFailure, false, actor, err, nil)
		return nil, err
	}
	pair, err := e.issueTokens(ctx, cred)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, actor, err, nil)
		return nil, err
	}
	e.resetRate(ctx, id, rate.ActionLoginAttempt)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, actor, nil, func() map[string]string {
		return map[string]string{"session_id": pair.SessionID}
	})

	return &LoginResult{
		Status:       StatusAuthenticated,
		CredentialID: cred.ID,
		Tokens:       pair,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, actor auditActor, err error, metadata map[string]string) error {
	e.metricInc(MetricLoginFailure)
	var build func() map[string]string
	if metadata != nil {
		build = func() map[string]string { return metadata }
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, actor, err, build)
	return err
}

// passwordFailed records a wrong password against the credential. Crossing
// the threshold locks it, but the caller still sees ErrInvalidCredentials.
func (e *Engine) passwordFailed(ctx context.Context, cred *credential.Credential, actor auditActor) error {
	if !e.config.Lockout.Enabled {
		return e.loginFailed(ctx, actor, ErrInvalidCredentials, nil)
	}

	res, err := e.credentials.RecordLoginFailure(ctx, cred.ID, e.config.Lockout.Threshold, e.config.Lockout.Duration, e.now())
	if err != nil {
		e.logger.Warn("login failure not recorded", zap.String("credential_id", cred.ID), zap.Error(err))
		return e.loginFailed(ctx, actor, ErrInvalidCredentials, nil)
	}
	if res.Locked {
		e.metricInc(MetricAccountLocked)
		return e.loginFailed(ctx, actor, ErrInvalidCredentials, map[string]string{
			"locked":        "true",
			"lockout_until": res.LockoutUntil.UTC().Format(auditTimeFormat),
		})
	}
	return e.loginFailed(ctx, actor, ErrInvalidCredentials, map[string]string{
		"failed_count": strconv.Itoa(res.Count),
	})
}

func (e *Engine) upgradeHash(ctx context.Context, credentialID, plaintext string) {
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("credential_id", credentialID), zap.Error(err))
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, credentialID, hash, false, e.now()); err != nil {
		e.logger.Warn("password rehash not stored", zap.String("credential_id", credentialID), zap.Error(err))
		return
	}
	e.metricInc(MetricPasswordRehash)
}

// stepUpPurpose reports whether a password login must be confirmed by OTP
// and which purpose the challenge carries.
func (e *Engine) stepUpPurpose(cred *credential.Credential) (Purpose, bool) {
	switch {
	case !cred.Verified:
		return PurposeSignup, true
	case cred.StepUpRequired, e.config.Login.RequireStepUp:
		return PurposeLogin, true
	default:
		return "", false
	}
}
