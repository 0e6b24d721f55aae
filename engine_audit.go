package otpAuth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	auditEventSignupSuccess         = "signup_success"
	auditEventSignupFailure         = "signup_failure"
	auditEventSignupDuplicate       = "signup_duplicate"
	auditEventSignupRateLimited     = "signup_rate_limited"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventLoginStepUpRequired   = "login_step_up_required"
	auditEventOTPResend             = "otp_resend"
	auditEventOTPResendRateLimited  = "otp_resend_rate_limited"
	auditEventOTPVerifySuccess      = "otp_verify_success"
	auditEventOTPVerifyFailure      = "otp_verify_failure"
	auditEventOTPVerifyRateLimited  = "otp_verify_rate_limited"
	auditEventOTPDeliveryFailed     = "otp_delivery_failed"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetLimited  = "password_reset_rate_limited"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordResetFailure  = "password_reset_failure"
	auditEventCredentialDeactivated = "credential_deactivated"
	auditEventAccessRejected        = "access_rejected"
)

// AuditErrorCode is the stable error label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrOTPExpired          AuditErrorCode = "otp_expired"
	auditErrOTPAttemptsExceeded AuditErrorCode = "otp_attempts_exceeded"
	auditErrOTPMismatch         AuditErrorCode = "otp_mismatch"
	auditErrOTPNotFound         AuditErrorCode = "otp_not_found"
	auditErrTokenExpired        AuditErrorCode = "token_expired"
	auditErrTokenRevoked        AuditErrorCode = "token_revoked"
	auditErrTokenTypeMismatch   AuditErrorCode = "token_type_mismatch"
	auditErrTokenInvalid        AuditErrorCode = "token_invalid"
	auditErrValidation          AuditErrorCode = "validation_failed"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrDeliveryFailed      AuditErrorCode = "delivery_failed"
	auditErrInternal            AuditErrorCode = "internal_error"
)

const auditTimeFormat = time.RFC3339

type auditActor struct {
	id   string
	role string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actor auditActor,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        ulid.Make().String(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		ActorID:   actor.id,
		ActorRole: actor.role,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitRateLimited records a denied action as the flow's single audit event.
// metric is counted in addition to MetricRateLimitHit.
func (e *Engine) emitRateLimited(ctx context.Context, eventType string, metric MetricID, actor auditActor, rl *RateLimitError) {
	e.metricInc(MetricRateLimitHit)
	if metric != MetricRateLimitHit {
		e.metricInc(metric)
	}
	e.emitAudit(ctx, eventType, false, actor, rl, func() map[string]string {
		return map[string]string{
			"action":        rl.Action,
			"blocked_until": rl.BlockedUntil.UTC().Format(auditTimeFormat),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrOTPAttemptsExceeded
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenTypeMismatch):
		return auditErrTokenTypeMismatch
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidation
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, errDeliveryFailed):
		return auditErrDeliveryFailed
	default:
		return auditErrInternal
	}
}
