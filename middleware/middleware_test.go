package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	otpAuth "github.com/MrEthical07/otpAuth"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	claims *otpAuth.AccessClaims
	seen   string
}

func (f *fakeValidator) ValidateAccess(_ context.Context, token string) (*otpAuth.AccessClaims, error) {
	f.seen = token
	if token != "good" {
		return nil, otpAuth.ErrTokenInvalid
	}
	return f.claims, nil
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireAccess(t *testing.T) {
	v := &fakeValidator{claims: &otpAuth.AccessClaims{CredentialID: "c1", Role: "user"}}
	var got *otpAuth.AccessClaims
	h := requireAccess(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	require.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer ").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer bad").Code)
	require.Nil(t, got)

	require.Equal(t, http.StatusNoContent, serve(h, "Bearer good").Code)
	require.Equal(t, "good", v.seen)
	require.NotNil(t, got)
	require.Equal(t, "c1", got.CredentialID)
}

func TestRequireAccessNilEngine(t *testing.T) {
	h := RequireAccess(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer good").Code)
}

func TestRequireRole(t *testing.T) {
	v := &fakeValidator{claims: &otpAuth.AccessClaims{CredentialID: "c1", Role: "user"}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(requireAccess(v)(RequireRole("user", "admin")(ok)), "Bearer good").Code)
	require.Equal(t, http.StatusForbidden, serve(requireAccess(v)(RequireRole("admin")(ok)), "Bearer good").Code)
	require.Equal(t, http.StatusUnauthorized, serve(RequireRole("user")(ok), "").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	require.Equal(t, "198.51.100.4", clientIP(req, false))
	require.Equal(t, "203.0.113.7", clientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "198.51.100.4", clientIP(req, true))

	req.RemoteAddr = "pipe"
	require.Equal(t, "pipe", clientIP(req, false))
}
