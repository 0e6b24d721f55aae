package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "otpauth",
		Audience:      "api",
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, exp, err := m.CreateAccess("cred-1", "reporter", "a@x.com", "jti-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if !exp.Equal(clock.t.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Parse(token, TypeAccess)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "cred-1" || claims.Role != "reporter" || claims.Email != "a@x.com" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsTypeMismatch(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newHSManager(t, clock)

	refresh, _, err := m.CreateRefresh("cred-1", "jti-r")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	if _, err := m.Parse(refresh, TypeAccess); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch, got %v", err)
	}
	if _, err := m.Parse(refresh, TypeRefresh); err != nil {
		t.Fatalf("expected refresh to parse: %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.CreateAccess("cred-1", "", "", "jti-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	clock.t = clock.t.Add(16 * time.Minute)

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ID:        "j",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseIssuerAudience(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "otpauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sign := func(iss, aud string, exp time.Time) string {
		c := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u",
			ID:        "j",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.Parse(sign("other", "api", time.Now().Add(time.Minute)), TypeAccess); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign("otpauth", "other-api", time.Now().Add(time.Minute)), TypeAccess); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign("otpauth", "api", time.Now().Add(-15*time.Second)), TypeAccess); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign("otpauth", "api", time.Now().Add(-2*time.Minute)), TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("short"),
	})
	if err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
}
