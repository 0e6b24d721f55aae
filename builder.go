package otpAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpAuth/credential"
	"github.com/MrEthical07/otpAuth/internal/audit"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/notify"
	"github.com/MrEthical07/otpAuth/otp"
	"github.com/MrEthical07/otpAuth/password"
	"github.com/MrEthical07/otpAuth/session"
	"github.com/MrEthical07/otpAuth/tokens"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder collects the Engine's collaborators. A Builder is single use:
// the second Build call fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials credential.Store
	gateway     notify.Gateway
	auditSink   AuditSink
	validator   password.Validator
	logger      *zap.Logger
	clock       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client shared by the OTP manager, the rate limiter and
// the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets where credentials live. Required.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.credentials = store
	return b
}

// WithGateway sets the transport OTP codes are delivered through. Required.
func (b *Builder) WithGateway(gateway notify.Gateway) *Builder {
	b.gateway = gateway
	return b
}

// WithAuditSink overrides the default zap-backed audit sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordValidator replaces Config.Password.Policy.
func (b *Builder) WithPasswordValidator(v password.Validator) *Builder {
	b.validator = v
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every component. Tests only.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the Engine's background
// workers. Call Engine.Close to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.gateway == nil {
		return nil, errors.New("notification gateway required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	validator := b.validator
	if validator == nil {
		validator = cfg.Password.Policy
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}

	otpManager, err := otp.NewManager(b.redis, otp.Config{
		Prefix:      cfg.OTP.RedisPrefix,
		TTL:         cfg.OTP.TTL,
		Digits:      cfg.OTP.Digits,
		MaxAttempts: cfg.OTP.MaxAttempts,
		HashKey:     cfg.OTP.HashKey,
		Retention:   cfg.OTP.Retention,
		Clock:       clock,
	})
	if err != nil {
		return nil, err
	}

	limiter := rate.New(b.redis, rate.Config{
		Prefix:   cfg.RateLimit.RedisPrefix,
		Policies: ratePolicies(cfg.RateLimit, 1),
		Clock:    clock,
	})
	var ipLimiter *rate.Limiter
	if cfg.RateLimit.EnableIPThrottle {
		ipLimiter = rate.New(b.redis, rate.Config{
			Prefix:   cfg.RateLimit.RedisPrefix,
			Policies: ratePolicies(cfg.RateLimit, cfg.RateLimit.IPMultiplier),
			Clock:    clock,
		})
	}

	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix)

	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(logger)
	}

	e := &Engine{
		config:      cfg,
		logger:      logger,
		clock:       clock,
		credentials: b.credentials,
		hasher:      hasher,
		validator:   validator,
		otp:         otpManager,
		limiter:     limiter,
		ipLimiter:   ipLimiter,
		tokens:      tokens.NewService(jm, sessions, clock),
		metrics:     NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
	}
	e.notifier = notify.NewDispatcher(notify.DispatcherConfig{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		Timeout:   cfg.Notification.Timeout,
	}, b.gateway, logger.Named("notify"), e.onDelivery)

	b.built = true
	return e, nil
}

func ratePolicies(cfg RateLimitConfig, multiplier int) map[rate.Action]rate.Policy {
	scale := func(p RatePolicy) rate.Policy {
		return rate.Policy{MaxAttempts: p.MaxAttempts * multiplier, Window: p.Window}
	}
	return map[rate.Action]rate.Policy{
		rate.ActionOTPRequest:          scale(cfg.OTPRequest),
		rate.ActionLoginAttempt:        scale(cfg.LoginAttempt),
		rate.ActionSignupAttempt:       scale(cfg.SignupAttempt),
		rate.ActionVerificationAttempt: scale(cfg.VerificationAttempt),
	}
}
