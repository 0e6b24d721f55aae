package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// costCeiling bounds stored parameters relative to the configured cost.
	costCeiling  = 4
	maxDigestKey = 1024

	// burnInput is hashed once at construction so unknown-identifier logins
	// spend the same work as a real verification.
	burnInput = "otpauth-burn-input"
)

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	errMalformed     = errors.New("malformed password digest")
)

// Config holds the Argon2id cost parameters used for new digests.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// VerifyResult is the outcome of comparing a plaintext against a stored digest.
// NeedsRehash is only meaningful when Match is true.
type VerifyResult struct {
	Match       bool
	NeedsRehash bool
}

// Argon2 hashes secrets with Argon2id and verifies both Argon2id and legacy
// bcrypt digests. It is safe for concurrent use.
type Argon2 struct {
	config Config
	burn   string
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewArgon2 validates cfg and returns a ready hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	a := &Argon2{config: cfg}
	burn, err := a.Hash(burnInput)
	if err != nil {
		return nil, err
	}
	a.burn = burn

	return a, nil
}

// Hash derives a PHC-encoded Argon2id digest with a fresh random salt.
func (a *Argon2) Hash(plaintext string) (string, error) {
	// Raw bytes are hashed exactly as provided; no Unicode normalization.
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares plaintext against digest in constant time. Malformed or
// unsupported digests never match and never panic.
func (a *Argon2) Verify(plaintext, digest string) VerifyResult {
	if isBcrypt(digest) {
		if bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) != nil {
			return VerifyResult{}
		}
		// Legacy digests are always migrated to the current algorithm.
		return VerifyResult{Match: true, NeedsRehash: true}
	}

	parsed, err := parsePHC(digest)
	if err != nil || a.excessive(parsed) {
		return VerifyResult{}
	}

	computed := argon2.IDKey([]byte(plaintext), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	if subtle.ConstantTimeCompare(computed, parsed.hash) != 1 {
		return VerifyResult{}
	}

	return VerifyResult{Match: true, NeedsRehash: a.weaker(parsed)}
}

// Burn performs one verification against an internal digest and discards the
// result.
func (a *Argon2) Burn(plaintext string) {
	_ = a.Verify(plaintext, a.burn)
}

func (a *Argon2) weaker(p *parsedPHC) bool {
	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.hash)) != a.config.KeyLength ||
		uint32(len(p.salt)) < a.config.SaltLength
}

// excessive rejects digests whose parameters would cost far more than the
// configured hasher, such as a corrupted row claiming m=4294967295.
func (a *Argon2) excessive(p *parsedPHC) bool {
	return uint64(p.memory) > uint64(a.config.Memory)*costCeiling ||
		uint64(p.time) > uint64(a.config.Time)*costCeiling ||
		uint64(p.parallelism) > uint64(a.config.Parallelism)*costCeiling ||
		len(p.hash) > maxDigestKey
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func parsePHC(digest string) (*parsedPHC, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errMalformed
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errMalformed
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, errMalformed
	}

	out := &parsedPHC{}
	if err := parseParams(parts[3], out); err != nil {
		return nil, err
	}

	salt, err := decodeSegment(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, errMalformed
	}
	hash, err := decodeSegment(parts[5])
	if err != nil || len(hash) < int(minKeyLength) {
		return nil, errMalformed
	}
	out.salt = salt
	out.hash = hash

	return out, nil
}

// decodeSegment accepts both the unpadded PHC encoding and padded base64.
func decodeSegment(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func parseParams(part string, out *parsedPHC) error {
	var seen int
	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errMalformed
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errMalformed
		}
		switch k {
		case "m":
			if uint32(n) < minMemoryKB {
				return errMalformed
			}
			out.memory = uint32(n)
		case "t":
			if uint32(n) < minTimeCost {
				return errMalformed
			}
			out.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return errMalformed
			}
			out.parallelism = uint8(n)
		default:
			return errMalformed
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return errMalformed
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KiB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	return nil
}
