package otp

import (
	"testing"
)

func TestGenerateCode(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := GenerateCode(digits)
		if err != nil {
			t.Fatalf("GenerateCode(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}

	if _, err := GenerateCode(5); err == nil {
		t.Fatal("expected 5 digits to be rejected")
	}
}

func TestHashCodeRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	digest := HashCode(key, "cred-1", "123456")

	if !VerifyCode(key, "cred-1", "123456", digest) {
		t.Fatal("expected matching code to verify")
	}
	if VerifyCode(key, "cred-1", "123457", digest) {
		t.Fatal("expected different code to fail")
	}
	if VerifyCode(key, "cred-2", "123456", digest) {
		t.Fatal("expected different credential to fail")
	}
	if VerifyCode([]byte("another-key-another-key-another-k"), "cred-1", "123456", digest) {
		t.Fatal("expected different key to fail")
	}
	if HashCode(key, "cred-1", "23456") == HashCode(key, "cred-12", "3456") {
		t.Fatal("expected separator to prevent concatenation collisions")
	}
}
