package internaldefs

import (
	otpAuth "github.com/MrEthical07/otpAuth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   otpAuth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   otpAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: otpAuth.MetricSignupSuccess, Name: "otpauth_signup_success_total", Help: "Signups that issued a verification code."},
	{ID: otpAuth.MetricSignupDuplicate, Name: "otpauth_signup_duplicate_total", Help: "Signups rejected because the identifier exists."},
	{ID: otpAuth.MetricSignupRateLimited, Name: "otpauth_signup_rate_limited_total", Help: "Rate-limited signup attempts."},
	{ID: otpAuth.MetricLoginSuccess, Name: "otpauth_login_success_total", Help: "Logins that issued tokens without step-up."},
	{ID: otpAuth.MetricLoginFailure, Name: "otpauth_login_failure_total", Help: "Failed login attempts."},
	{ID: otpAuth.MetricLoginRateLimited, Name: "otpauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: otpAuth.MetricLoginStepUpRequired, Name: "otpauth_login_step_up_required_total", Help: "Logins that required OTP confirmation."},
	{ID: otpAuth.MetricAccountLocked, Name: "otpauth_account_locked_total", Help: "Lockouts triggered or enforced."},
	{ID: otpAuth.MetricOTPIssued, Name: "otpauth_otp_issued_total", Help: "OTP challenges issued."},
	{ID: otpAuth.MetricOTPVerifySuccess, Name: "otpauth_otp_verify_success_total", Help: "Successful OTP verifications."},
	{ID: otpAuth.MetricOTPVerifyFailure, Name: "otpauth_otp_verify_failure_total", Help: "Failed OTP verifications."},
	{ID: otpAuth.MetricOTPExpired, Name: "otpauth_otp_expired_total", Help: "Verifications against an expired challenge."},
	{ID: otpAuth.MetricOTPAttemptsExceeded, Name: "otpauth_otp_attempts_exceeded_total", Help: "Verifications against an exhausted challenge."},
	{ID: otpAuth.MetricOTPResend, Name: "otpauth_otp_resend_total", Help: "Codes reissued by resend."},
	{ID: otpAuth.MetricOTPDeliveryFailure, Name: "otpauth_otp_delivery_failure_total", Help: "Codes the gateway failed to deliver or the queue dropped."},
	{ID: otpAuth.MetricRateLimitHit, Name: "otpauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: otpAuth.MetricRefreshSuccess, Name: "otpauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: otpAuth.MetricRefreshFailure, Name: "otpauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: otpAuth.MetricSessionCreated, Name: "otpauth_session_created_total", Help: "Created sessions."},
	{ID: otpAuth.MetricLogout, Name: "otpauth_logout_total", Help: "Single-session logout operations."},
	{ID: otpAuth.MetricLogoutAll, Name: "otpauth_logout_all_total", Help: "Logout-all operations."},
	{ID: otpAuth.MetricPasswordRehash, Name: "otpauth_password_rehash_total", Help: "Password digests upgraded on login."},
	{ID: otpAuth.MetricPasswordResetRequest, Name: "otpauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: otpAuth.MetricPasswordResetConfirmSuccess, Name: "otpauth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: otpAuth.MetricPasswordResetConfirmFailure, Name: "otpauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: otpAuth.MetricCredentialDeactivated, Name: "otpauth_credential_deactivated_total", Help: "Credential deactivations."},
	{ID: otpAuth.MetricAccessRejected, Name: "otpauth_access_rejected_total", Help: "Access tokens rejected by ValidateAccess."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: otpAuth.MetricValidateLatency, Name: "otpauth_validate_latency_seconds", Help: "ValidateAccess latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "otpauth_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine's
// eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native
// histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
