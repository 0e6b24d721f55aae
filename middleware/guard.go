package middleware

import (
	"context"
	"net/http"
	"strings"

	otpAuth "github.com/MrEthical07/otpAuth"
)

type claimsContextKey struct{}

type accessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*otpAuth.AccessClaims, error)
}

// ClaimsFromContext returns the claims stored by [RequireAccess].
func ClaimsFromContext(ctx context.Context) (*otpAuth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*otpAuth.AccessClaims)
	return claims, ok && claims != nil
}

// RequireAccess rejects requests without a valid bearer access token. Whether
// the session store is consulted follows the engine's StrictValidation
// setting.
func RequireAccess(engine *otpAuth.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return requireAccess(nil)
	}
	return requireAccess(engine)
}

func requireAccess(v accessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
