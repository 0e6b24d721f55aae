package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{&RateLimitError{Action: "login_attempt"}, auditErrRateLimited},
		{ErrAccountLocked, auditErrAccountLocked},
		{ErrAlreadyExists, auditErrDuplicate},
		{ErrOTPExpired, auditErrOTPExpired},
		{ErrOTPAttemptsExceeded, auditErrOTPAttemptsExceeded},
		{&OTPMismatchError{Remaining: 2}, auditErrOTPMismatch},
		{ErrOTPNotFound, auditErrOTPNotFound},
		{ErrTokenExpired, auditErrTokenExpired},
		{ErrTokenRevoked, auditErrTokenRevoked},
		{ErrTokenTypeMismatch, auditErrTokenTypeMismatch},
		{ErrTokenInvalid, auditErrTokenInvalid},
		{&ValidationError{Field: "password", Reasons: []string{"too short"}}, auditErrValidation},
		{fmt.Errorf("%w: %v", ErrStoreUnavailable, errors.New("dial tcp")), auditErrUnavailable},
		{errDeliveryFailed, auditErrDeliveryFailed},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditEventsCarryContext(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	if _, err := h.engine.Login(ctx, "ghost@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	events := h.auditEvents()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "192.0.2.10" {
		t.Fatalf("expected client IP on event, got %q", ev.IP)
	}
	if ev.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected error code %q", ev.Error)
	}
	if _, err := ulid.ParseStrict(ev.ID); err != nil {
		t.Fatalf("event id %q is not a ULID: %v", ev.ID, err)
	}
	if !ev.Timestamp.Equal(h.clock.Now().UTC()) {
		t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.Audit.Enabled = false
	})
	h.signupVerified(t, "yara@example.com")

	if events := h.auditEvents(); len(events) != 0 {
		t.Fatalf("expected no audit events, got %d", len(events))
	}
	if h.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

func TestValidateAccessRejectionsAudited(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	res, pair := h.signupVerified(t, "zane@example.com")

	claims, err := h.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if err := h.engine.Logout(ctx, claims.JTI); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, "not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricAccessRejected]; got != 2 {
		t.Fatalf("expected 2 rejections counted, got %d", got)
	}

	var rejected []AuditEvent
	for _, ev := range h.auditEvents() {
		if ev.EventType == auditEventAccessRejected {
			rejected = append(rejected, ev)
		}
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejection events, got %d", len(rejected))
	}
	revoked, invalid := rejected[0], rejected[1]
	if revoked.Success || revoked.Error != string(auditErrTokenRevoked) || revoked.ActorID != res.CredentialID || revoked.Metadata["jti"] != claims.JTI {
		t.Fatalf("unexpected revoked event %+v", revoked)
	}
	if invalid.Error != string(auditErrTokenInvalid) || invalid.ActorID != "" {
		t.Fatalf("unexpected invalid event %+v", invalid)
	}
}
