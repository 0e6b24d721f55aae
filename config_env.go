package otpAuth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "OTPAUTH_"

// LoadConfigFromEnv starts from [DefaultConfig] and overrides it from the
// process environment. files are loaded with godotenv first (existing
// variables win); with no files a ./.env is loaded when present. The result
// is validated.
//
// Key material may be given raw or prefixed with "base64:". PEM values may
// use literal \n sequences.
func LoadConfigFromEnv(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := DefaultConfig()
	l := envLoader{}

	if v, ok := l.str("JWT_SIGNING_METHOD"); ok {
		cfg.JWT.SigningMethod = strings.ToLower(v)
	}
	l.key("JWT_SECRET", &cfg.JWT.PrivateKey)
	l.key("JWT_PRIVATE_KEY", &cfg.JWT.PrivateKey)
	l.key("JWT_PUBLIC_KEY", &cfg.JWT.PublicKey)
	if v, ok := l.str("JWT_ISSUER"); ok {
		cfg.JWT.Issuer = v
	}
	if v, ok := l.str("JWT_AUDIENCE"); ok {
		cfg.JWT.Audience = v
	}
	l.duration("ACCESS_TTL", &cfg.JWT.AccessTTL)
	l.duration("REFRESH_TTL", &cfg.JWT.RefreshTTL)

	l.duration("OTP_TTL", &cfg.OTP.TTL)
	l.integer("OTP_DIGITS", &cfg.OTP.Digits)
	l.integer("OTP_MAX_ATTEMPTS", &cfg.OTP.MaxAttempts)
	l.key("OTP_HASH_KEY", &cfg.OTP.HashKey)

	for name, p := range map[string]*RatePolicy{
		"OTP_REQUEST":          &cfg.RateLimit.OTPRequest,
		"LOGIN_ATTEMPT":        &cfg.RateLimit.LoginAttempt,
		"SIGNUP_ATTEMPT":       &cfg.RateLimit.SignupAttempt,
		"VERIFICATION_ATTEMPT": &cfg.RateLimit.VerificationAttempt,
	} {
		l.integer("RATE_"+name+"_MAX", &p.MaxAttempts)
		l.duration("RATE_"+name+"_WINDOW", &p.Window)
	}
	l.boolean("RATE_IP_THROTTLE", &cfg.RateLimit.EnableIPThrottle)

	l.integer("LOCKOUT_THRESHOLD", &cfg.Lockout.Threshold)
	l.duration("LOCKOUT_DURATION", &cfg.Lockout.Duration)
	l.boolean("LOGIN_REQUIRE_STEP_UP", &cfg.Login.RequireStepUp)

	l.integer("NOTIFY_WORKERS", &cfg.Notification.Workers)
	l.integer("NOTIFY_QUEUE_SIZE", &cfg.Notification.QueueSize)
	l.duration("NOTIFY_TIMEOUT", &cfg.Notification.Timeout)

	l.boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	l.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	if len(l.errs) > 0 {
		return Config{}, errors.Join(l.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLoader struct {
	errs []error
}

func (l *envLoader) str(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (l *envLoader) fail(name string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
}

func (l *envLoader) duration(name string, dst *time.Duration) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = d
}

func (l *envLoader) integer(name string, dst *int) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = n
}

func (l *envLoader) boolean(name string, dst *bool) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = b
}

func (l *envLoader) key(name string, dst *[]byte) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	if rest, found := strings.CutPrefix(v, "base64:"); found {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			l.fail(name, err)
			return
		}
		*dst = b
		return
	}
	*dst = []byte(strings.ReplaceAll(v, `\n`, "\n"))
}
