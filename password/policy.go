package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrPolicy is matched by every error returned from Policy.Validate.
var ErrPolicy = errors.New("password policy violation")

// Validator checks a candidate plaintext before it is hashed.
type Validator interface {
	Validate(plaintext string) error
}

// PolicyError lists every rule a candidate failed.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return ErrPolicy.Error() + ": " + strings.Join(e.Violations, ", ")
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicy
}

// Policy is the built-in composition-rule validator.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires 8..128 characters with upper, lower, digit and symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Validate returns a *PolicyError when plaintext breaks any rule.
func (p Policy) Validate(plaintext string) error {
	var violations []string

	n := utf8.RuneCountInString(plaintext)
	if p.MinLength > 0 && n < p.MinLength {
		violations = append(violations, "too short")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		violations = append(violations, "too long")
	}

	var upper, lower, digit, symbol bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUpper && !upper {
		violations = append(violations, "missing uppercase letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "missing lowercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "missing digit")
	}
	if p.RequireSymbol && !symbol {
		violations = append(violations, "missing symbol")
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
