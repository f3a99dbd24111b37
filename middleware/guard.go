package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fieldops/agentauth"
)

// TokenValidator is the part of [agentauth.Engine] the guard needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*agentauth.TokenClaims, error)
}

// Guard rejects requests without a valid bearer token and stores the validated claims in
// the request context, where [agentauth.ClaimsFromContext] finds them.
//
// Refused tokens get 401 and inactive agents 403. A store failure during validation gets
// 503 so clients can retry.
func Guard(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				status := statusFor(err)
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(agentauth.WithClaims(r.Context(), claims)))
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agentauth.ErrAgentInactive):
		return http.StatusForbidden
	case errors.Is(err, agentauth.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
