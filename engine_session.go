package otpAuth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/tokens"
)

// Refresh rotates a refresh token. The presented token is consumed even when
// the credential turns out to be deactivated, so it can never be replayed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var actor auditActor
	resolve := func(ctx context.Context, credentialID string) (tokens.Identity, error) {
		actor.id = credentialID
		cred, err := e.credentials.GetByID(ctx, credentialID)
		if err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				return tokens.Identity{}, ErrInvalidCredentials
			}
			return tokens.Identity{}, storeErr(err)
		}
		if !cred.Active {
			return tokens.Identity{}, ErrInvalidCredentials
		}
		actor.role = cred.Role
		return identityOf(cred), nil
	}

	pair, err := e.tokens.Rotate(ctx, refreshToken, resolve, tokens.Meta{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		err = mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, actor, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, actor, nil, func() map[string]string {
		return map[string]string{"session_id": pair.SessionID}
	})
	return toTokenPair(pair), nil
}

// ValidateAccess verifies an access token. With Session.StrictValidation the
// token's session must also still be active, so Logout takes effect
// immediately instead of at token expiry.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.Verify(accessToken)
	if err != nil {
		return nil, e.accessRejected(ctx, auditActor{}, "", mapTokenError(err))
	}

	if e.config.Session.StrictValidation {
		actor := auditActor{id: claims.Subject, role: claims.Role}
		active, err := e.tokens.IsActive(ctx, claims.ID)
		if err != nil {
			return nil, e.accessRejected(ctx, actor, claims.ID, storeErr(err))
		}
		if !active {
			return nil, e.accessRejected(ctx, actor, claims.ID, ErrTokenRevoked)
		}
	}

	out := &AccessClaims{
		CredentialID: claims.Subject,
		Role:         claims.Role,
		Email:        claims.Email,
		JTI:          claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// accessRejected records a failed ValidateAccess. Accepted tokens are not
// audited.
func (e *Engine) accessRejected(ctx context.Context, actor auditActor, jti string, err error) error {
	e.metricInc(MetricAccessRejected)
	var meta func() map[string]string
	if jti != "" {
		meta = func() map[string]string { return map[string]string{"jti": jti} }
	}
	e.emitAudit(ctx, auditEventAccessRejected, false, actor, err, meta)
	return err
}

// Logout ends the session bound to an access token id. An unknown or already
// ended session is not an error.
func (e *Engine) Logout(ctx context.Context, accessJTI string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accessJTI == "" {
		return &ValidationError{Field: "jti", Reasons: []string{"required"}}
	}

	revoked, err := e.tokens.RevokeByAccessJTI(ctx, accessJTI)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogoutSession, false, auditActor{}, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, auditActor{}, nil, func() map[string]string {
		return map[string]string{"jti": accessJTI, "revoked": strconv.FormatBool(revoked)}
	})
	return nil
}

// LogoutAll ends every session of a credential.
func (e *Engine) LogoutAll(ctx context.Context, credentialID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if credentialID == "" {
		return &ValidationError{Field: "credential_id", Reasons: []string{"required"}}
	}

	actor := auditActor{id: credentialID}
	n, err := e.tokens.RevokeAll(ctx, credentialID)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, actor, err, nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, actor, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return nil
}

// Sessions lists a credential's active sessions.
func (e *Engine) Sessions(ctx context.Context, credentialID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	list, err := e.tokens.Sessions(ctx, credentialID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, SessionInfo{
			ID:             s.ID,
			CredentialID:   s.CredentialID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			ExpiresAt:      s.ExpiresAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	return out, nil
}

// DeactivateCredential disables a credential and ends all of its sessions.
// Deactivated credentials cannot log in, verify or refresh.
func (e *Engine) DeactivateCredential(ctx context.Context, credentialID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	actor := auditActor{id: credentialID}
	if err := e.credentials.Deactivate(ctx, credentialID, e.now()); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			err = ErrInvalidCredentials
		} else {
			err = storeErr(err)
		}
		e.emitAudit(ctx, auditEventCredentialDeactivated, false, actor, err, nil)
		return err
	}

	n, err := e.tokens.RevokeAll(ctx, credentialID)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventCredentialDeactivated, false, actor, err, nil)
		return err
	}

	e.metricInc(MetricCredentialDeactivated)
	e.emitAudit(ctx, auditEventCredentialDeactivated, true, actor, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(n)}
	})
	return nil
}
