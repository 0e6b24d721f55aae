package otpAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpAuth/password"
)

// Config is the complete Engine configuration. Start from [DefaultConfig] or
// [LoadConfigFromEnv] and treat the value as immutable once passed to the
// Builder.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	OTP          OTPConfig
	RateLimit    RateLimitConfig
	Lockout      LockoutConfig
	Session      SessionConfig
	Signup       SignupConfig
	Login        LoginConfig
	Notification NotificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the signing algorithm and token lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // hs256 secret or ed25519 private key
	PublicKey     []byte // ed25519 only
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the strength policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Policy         password.Policy
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig shapes one-time codes.
type OTPConfig struct {
	RedisPrefix string
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	// HashKey keys the HMAC over stored codes. Required, at least 32 bytes.
	HashKey   []byte
	Retention time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy bounds one action to MaxAttempts per Window.
type RatePolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig sets per-action windows. Identifier keys always apply;
// the IP throttle multiplies each policy by IPMultiplier and keys it by the
// request IP.
type RateLimitConfig struct {
	RedisPrefix         string
	OTPRequest          RatePolicy
	LoginAttempt        RatePolicy
	SignupAttempt       RatePolicy
	VerificationAttempt RatePolicy
	EnableIPThrottle    bool
	IPMultiplier        int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig locks a credential after Threshold consecutive password
// failures.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh sessions.
type SessionConfig struct {
	RedisPrefix string
	// StrictValidation makes ValidateAccess check that the access token's
	// session is still active, so logout takes effect before token expiry.
	StrictValidation bool
}

/*
====================================
SIGNUP / LOGIN CONFIG
====================================
*/

// SignupConfig controls self-registration.
type SignupConfig struct {
	DefaultRole  string
	AllowedRoles []string
}

// LoginConfig controls the password step.
type LoginConfig struct {
	// RequireStepUp sends an OTP on every login, not only for unverified or
	// flagged credentials.
	RequireStepUp bool
}

/*
====================================
NOTIFICATION / AUDIT / METRICS
====================================
*/

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// AuditConfig controls async audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. JWT.PrivateKey and OTP.HashKey
// are left empty and must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "otpauth",
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		OTP: OTPConfig{
			RedisPrefix: "otp",
			TTL:         5 * time.Minute,
			Digits:      6,
			MaxAttempts: 5,
			Retention:   24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:         "orl",
			OTPRequest:          RatePolicy{MaxAttempts: 3, Window: 60 * time.Minute},
			LoginAttempt:        RatePolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			SignupAttempt:       RatePolicy{MaxAttempts: 3, Window: 60 * time.Minute},
			VerificationAttempt: RatePolicy{MaxAttempts: 10, Window: 5 * time.Minute},
			EnableIPThrottle:    false,
			IPMultiplier:        10,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:      "oss",
			StrictValidation: true,
		},
		Signup: SignupConfig{
			DefaultRole:  "user",
			AllowedRoles: []string{"user"},
		},
		Login: LoginConfig{
			RequireStepUp: false,
		},
		Notification: NotificationConfig{
			Workers:   4,
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.OTP.HashKey = cloneBytes(cfg.OTP.HashKey)
	if cfg.Signup.AllowedRoles != nil {
		out.Signup.AllowedRoles = append([]string(nil), cfg.Signup.AllowedRoles...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	if c.Password.Memory < 8192 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if len(c.OTP.HashKey) < 32 {
		return errors.New("OTP HashKey must be at least 32 bytes")
	}
	if c.OTP.Retention < 0 {
		return errors.New("OTP Retention must be >= 0")
	}

	for name, p := range map[string]RatePolicy{
		"OTPRequest":          c.RateLimit.OTPRequest,
		"LoginAttempt":        c.RateLimit.LoginAttempt,
		"SignupAttempt":       c.RateLimit.SignupAttempt,
		"VerificationAttempt": c.RateLimit.VerificationAttempt,
	} {
		if p.MaxAttempts <= 0 || p.Window <= 0 {
			return errors.New("RateLimit " + name + " requires MaxAttempts > 0 and Window > 0")
		}
	}
	// The per-challenge ceiling must be reachable before the identifier is throttled.
	if c.RateLimit.VerificationAttempt.MaxAttempts <= c.OTP.MaxAttempts {
		return errors.New("RateLimit VerificationAttempt MaxAttempts must exceed OTP MaxAttempts")
	}
	if c.RateLimit.EnableIPThrottle && c.RateLimit.IPMultiplier <= 0 {
		return errors.New("RateLimit IPMultiplier must be > 0 when the IP throttle is enabled")
	}

	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
	}

	if c.Signup.DefaultRole == "" {
		return errors.New("Signup DefaultRole is required")
	}
	if !containsString(c.Signup.AllowedRoles, c.Signup.DefaultRole) {
		return errors.New("Signup DefaultRole must be listed in AllowedRoles")
	}

	if c.Notification.Workers <= 0 {
		return errors.New("Notification Workers must be > 0")
	}
	if c.Notification.QueueSize <= 0 {
		return errors.New("Notification QueueSize must be > 0")
	}
	if c.Notification.Timeout <= 0 {
		return errors.New("Notification Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
