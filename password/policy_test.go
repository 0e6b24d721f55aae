package password

import (
	"errors"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		in string
		ok bool
	}{
		{"Str0ng@Pass1", true},
		{"short1!", false},
		{"alllowercase1!", false},
		{"ALLUPPERCASE1!", false},
		{"NoDigits!!", false},
		{"NoSymbols123", false},
	}

	for _, tc := range cases {
		err := p.Validate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("Validate(%q) unexpected error: %v", tc.in, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrPolicy) {
				t.Fatalf("Validate(%q) expected ErrPolicy, got %v", tc.in, err)
			}
		}
	}
}

func TestPolicyErrorListsViolations(t *testing.T) {
	err := DefaultPolicy().Validate("abc")

	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PolicyError, got %T", err)
	}
	if len(pe.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %v", pe.Violations)
	}
}
