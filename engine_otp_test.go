package otpAuth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResendSupersedesPreviousCode(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	const email = "jane@example.com"

	if _, err := h.engine.Signup(ctx, email, testPassword, Profile{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	first := h.nextCode(t, email)

	if _, err := h.engine.ResendOTP(ctx, email, PurposeSignup); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	second := h.nextCode(t, email)

	if first != second {
		if _, err := h.engine.VerifyOTP(ctx, email, PurposeSignup, first); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("expected superseded code to mismatch, got %v", err)
		}
	}
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeSignup, second); err != nil {
		t.Fatalf("VerifyOTP with current code failed: %v", err)
	}
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeSignup, second); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected consumed code to be not found, got %v", err)
	}
}

func TestResendDoesNotRevealOrBypass(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	const email = "kim@example.com"
	h.signupVerified(t, email)
	before := len(h.gateway.Messages())

	cases := []struct {
		identifier string
		purpose    Purpose
	}{
		{identifier: "unknown@example.com", purpose: PurposeSignup},
		{identifier: email, purpose: PurposeSignup},
		{identifier: email, purpose: PurposeLogin},
		{identifier: email, purpose: PurposePasswordReset},
	}
	for _, tc := range cases {
		res, err := h.engine.ResendOTP(ctx, tc.identifier, tc.purpose)
		if err != nil {
			t.Fatalf("ResendOTP(%s, %s) failed: %v", tc.identifier, tc.purpose, err)
		}
		if res.Status != StatusSent {
			t.Fatalf("expected StatusSent, got %s", res.Status)
		}
	}

	// Nothing was submitted, so nothing can arrive late.
	if got := len(h.gateway.Messages()); got != before {
		t.Fatalf("expected no deliveries, got %d new", got-before)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPResend]; got != 0 {
		t.Fatalf("expected no resends, got %d", got)
	}

	if _, err := h.engine.ResendOTP(ctx, email, Purpose("bogus")); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for unknown purpose, got %v", err)
	}
}

func TestResendRateLimited(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.engine.ResendOTP(ctx, "lee@example.com", PurposeSignup); err != nil {
			t.Fatalf("resend %d failed: %v", i+1, err)
		}
	}
	if _, err := h.engine.ResendOTP(ctx, "lee@example.com", PurposeSignup); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	const email = "mia@example.com"

	if _, err := h.engine.Signup(ctx, email, testPassword, Profile{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := h.nextCode(t, email)

	h.clock.Advance(5*time.Minute + time.Second)
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeSignup, code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestVerifyOTPRejections(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.VerifyOTP(ctx, "nobody@example.com", PurposeSignup, "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound for unknown identifier, got %v", err)
	}
	if _, err := h.engine.VerifyOTP(ctx, "nobody@example.com", PurposePasswordReset, "123456"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for reset purpose, got %v", err)
	}

	h.signupVerified(t, "noah@example.com")
	if _, err := h.engine.VerifyOTP(ctx, "noah@example.com", PurposeLogin, "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound without a login challenge, got %v", err)
	}
}

func TestDeliveryFailureDoesNotFailSignup(t *testing.T) {
	h := newTestHarness(t, nil)
	h.gateway.Err = errors.New("smtp down")
	ctx := context.Background()

	res, err := h.engine.Signup(ctx, "olga@example.com", testPassword, Profile{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if res.Status != StatusPendingVerification {
		t.Fatalf("unexpected status %s", res.Status)
	}

	select {
	case <-h.gateway.Attempts():
	case <-time.After(3 * time.Second):
		t.Fatal("delivery never attempted")
	}

	var failed, signedUp int
	for _, ev := range h.auditEvents() {
		switch ev.EventType {
		case auditEventOTPDeliveryFailed:
			failed++
			if ev.Error != string(auditErrDeliveryFailed) || ev.Metadata["destination"] != "o***@example.com" {
				t.Fatalf("unexpected delivery audit event: %+v", ev)
			}
		case auditEventSignupSuccess:
			signedUp++
		}
	}
	if failed != 1 || signedUp != 1 {
		t.Fatalf("expected one delivery failure and one signup success, got %d and %d", failed, signedUp)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPDeliveryFailure]; got != 1 {
		t.Fatalf("expected delivery failure metric 1, got %d", got)
	}
}

func TestResendLoginReissuesLiveChallenge(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.Login.RequireStepUp = true
	})
	ctx := context.Background()
	const email = "pia@example.com"
	h.signupVerified(t, email)

	if _, err := h.engine.Login(ctx, email, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	h.nextCode(t, email)

	if _, err := h.engine.ResendOTP(ctx, email, PurposeLogin); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeLogin, h.nextCode(t, email)); err != nil {
		t.Fatalf("VerifyOTP with resent code failed: %v", err)
	}
}

func TestResendLoginAfterExhaustionIssuesNothing(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.Login.RequireStepUp = true
	})
	ctx := context.Background()
	const email = "ravi@example.com"
	h.signupVerified(t, email)

	if _, err := h.engine.Login(ctx, email, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := h.nextCode(t, email)
	for i := 0; i < 5; i++ {
		_, _ = h.engine.VerifyOTP(ctx, email, PurposeLogin, wrongCode(code))
	}
	before := len(h.gateway.Messages())

	h.clock.Advance(20 * time.Hour)
	res, err := h.engine.ResendOTP(ctx, email, PurposeLogin)
	if err != nil || res.Status != StatusSent {
		t.Fatalf("ResendOTP: %+v, %v", res, err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPResend]; got != 0 {
		t.Fatalf("expected no login code reissued, got %d", got)
	}
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeLogin, code); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected exhausted challenge to stay latest, got %v", err)
	}
	if got := len(h.gateway.Messages()); got != before {
		t.Fatalf("expected no deliveries, got %d new", got-before)
	}
}

func TestResendLoginAfterExpiryIssuesNothing(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.Login.RequireStepUp = true
	})
	ctx := context.Background()
	const email = "sol@example.com"
	h.signupVerified(t, email)

	if _, err := h.engine.Login(ctx, email, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := h.nextCode(t, email)

	h.clock.Advance(5*time.Minute + time.Second)
	if _, err := h.engine.ResendOTP(ctx, email, PurposeLogin); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPResend]; got != 0 {
		t.Fatalf("expected no login code reissued, got %d", got)
	}
	if _, err := h.engine.VerifyOTP(ctx, email, PurposeLogin, code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}
