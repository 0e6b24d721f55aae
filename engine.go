package otpAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/audit"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/notify"
	"github.com/MrEthical07/otpAuth/otp"
	"github.com/MrEthical07/otpAuth/password"
	"github.com/MrEthical07/otpAuth/tokens"
	"go.uber.org/zap"
)

var errDeliveryFailed = errors.New("otp delivery failed")

// Engine orchestrates signup, login, OTP verification and token lifecycle.
// It is safe for concurrent use. Build one with [New].
type Engine struct {
	config Config
	logger *zap.Logger
	clock  func() time.Time

	credentials credential.Store
	hasher      *password.Argon2
	validator   password.Validator
	otp         *otp.Manager
	limiter     *rate.Limiter
	ipLimiter   *rate.Limiter
	tokens      *tokens.Service
	notifier    *notify.Dispatcher
	audit       *audit.Dispatcher
	metrics     *Metrics
}

// Close drains pending deliveries and audit events. The Engine must not be
// used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// checkRate counts one attempt of action against the identifier and, when
// enabled, the request IP.
func (e *Engine) checkRate(ctx context.Context, id identifier, action rate.Action) error {
	if err := e.checkRateKey(ctx, e.limiter, id.value, id.rateType(), action); err != nil {
		return err
	}
	if e.ipLimiter == nil {
		return nil
	}
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return nil
	}
	return e.checkRateKey(ctx, e.ipLimiter, ip, rate.IdentifierIP, action)
}

func (e *Engine) checkRateKey(ctx context.Context, l *rate.Limiter, key string, idType rate.IdentifierType, action rate.Action) error {
	d, err := l.Check(ctx, key, idType, action)
	if err != nil {
		return storeErr(err)
	}
	if !d.Allowed {
		return &RateLimitError{Action: string(action), Remaining: 0, BlockedUntil: d.BlockedUntil}
	}
	return nil
}

func (e *Engine) resetRate(ctx context.Context, id identifier, action rate.Action) {
	if err := e.limiter.Reset(ctx, id.value, id.rateType(), action); err != nil {
		e.logger.Warn("rate counter reset failed", zap.String("action", string(action)), zap.Error(err))
	}
}

// lookup returns credential.ErrNotFound unwrapped so callers can branch on it.
func (e *Engine) lookup(ctx context.Context, id identifier) (*credential.Credential, error) {
	var (
		cred *credential.Credential
		err  error
	)
	if id.kind == identifierPhone {
		cred, err = e.credentials.GetByPhone(ctx, id.value)
	} else {
		cred, err = e.credentials.GetByEmail(ctx, id.value)
	}
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, credential.ErrNotFound
		}
		return nil, storeErr(err)
	}
	return cred, nil
}

// issueChallenge creates a fresh challenge and hands the code to the
// delivery pool. Delivery failures never fail the caller.
func (e *Engine) issueChallenge(ctx context.Context, cred *credential.Credential, id identifier, purpose Purpose) (otp.Issued, error) {
	issued, err := e.otp.Issue(ctx, otp.IssueRequest{
		CredentialID: cred.ID,
		Purpose:      purpose,
		IP:           clientIPFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
	})
	if err != nil {
		return otp.Issued{}, storeErr(err)
	}
	e.metricInc(MetricOTPIssued)

	if !e.notifier.Submit(notify.Message{
		Channel:      id.channel(),
		Destination:  id.value,
		Code:         issued.Code,
		Purpose:      string(purpose),
		CredentialID: cred.ID,
	}) {
		e.logger.Warn("otp delivery not queued",
			zap.String("credential_id", cred.ID),
			zap.String("purpose", string(purpose)),
		)
	}
	return issued, nil
}

// onDelivery runs on a notification worker for every finished delivery.
func (e *Engine) onDelivery(res notify.Result) {
	if res.Err == nil {
		return
	}
	e.metricInc(MetricOTPDeliveryFailure)
	e.emitAudit(context.Background(), auditEventOTPDeliveryFailed, false, auditActor{id: res.Message.CredentialID}, errDeliveryFailed, func() map[string]string {
		return map[string]string{
			"channel":     string(res.Message.Channel),
			"destination": notify.MaskDestination(res.Message.Destination),
			"purpose":     res.Message.Purpose,
		}
	})
}

func (e *Engine) issueTokens(ctx context.Context, cred *credential.Credential) (*TokenPair, error) {
	pair, err := e.tokens.Issue(ctx, identityOf(cred), tokens.Meta{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, mapTokenError(err)
	}
	e.metricInc(MetricSessionCreated)
	return toTokenPair(pair), nil
}

func identityOf(cred *credential.Credential) tokens.Identity {
	return tokens.Identity{CredentialID: cred.ID, Role: cred.Role, Email: cred.Email}
}

func toTokenPair(p *tokens.Pair) *TokenPair {
	return &TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
		SessionID:        p.SessionID,
	}
}

func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenTypeMismatch):
		return ErrTokenTypeMismatch
	case errors.Is(err, jwt.ErrTokenInvalid), errors.Is(err, tokens.ErrSubjectMismatch):
		return ErrTokenInvalid
	case errors.Is(err, tokens.ErrTokenRevoked):
		return ErrTokenRevoked
	case errors.Is(err, tokens.ErrStoreUnavailable):
		return storeErr(err)
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrInvalidCredentials):
		return err
	default:
		return ErrTokenInvalid
	}
}

func (e *Engine) validatePassword(plaintext string) error {
	if e.validator == nil {
		return nil
	}
	if err := e.validator.Validate(plaintext); err != nil {
		var pe *password.PolicyError
		if errors.As(err, &pe) {
			return &ValidationError{Field: "password", Reasons: pe.Violations}
		}
		return &ValidationError{Field: "password", Reasons: []string{err.Error()}}
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

// otpFailure maps a non-success outcome to its error and counts it.
func (e *Engine) otpFailure(res otp.Result) error {
	e.metricInc(MetricOTPVerifyFailure)
	switch res.Outcome {
	case otp.OutcomeExpired:
		e.metricInc(MetricOTPExpired)
		return ErrOTPExpired
	case otp.OutcomeAttemptsExceeded:
		e.metricInc(MetricOTPAttemptsExceeded)
		return ErrOTPAttemptsExceeded
	case otp.OutcomeMismatch:
		return &OTPMismatchError{Remaining: res.Remaining}
	default:
		return ErrOTPNotFound
	}
}
