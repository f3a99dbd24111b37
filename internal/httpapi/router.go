// Package httpapi is the JSON HTTP surface served by agentauth-server.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldops/agentauth"
	"github.com/fieldops/agentauth/middleware"
)

// Authenticator is the engine surface the handlers call. *agentauth.Engine satisfies it.
type Authenticator interface {
	Register(ctx context.Context, req agentauth.RegisterRequest) (*agentauth.AgentIdentity, error)
	Login(ctx context.Context, email, password string) (*agentauth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPassword, confirm string) error
	ValidateToken(ctx context.Context, token string) (*agentauth.TokenClaims, error)
}

// RouterDeps collects what NewRouter wires together.
type RouterDeps struct {
	Auth   Authenticator
	Logger *slog.Logger

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// Ready backs /healthz. Nil means always healthy.
	Ready func(ctx context.Context) error
}

// NewRouter builds the route table.
//
// Middleware order:
//
//	Logging → Recovery → ClientContext
//
// /api/me is the only route behind the bearer guard.
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &handler{auth: deps.Auth, logger: logger}

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(ClientContextMiddleware)

	r.Get("/healthz", healthHandler(deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/agents", h.register)
		r.Post("/agent-login/", h.login)
		r.Post("/forgot-password/", h.forgotPassword)
		r.Post("/verify-otp/", h.verifyOTP)
		r.Post("/reset-password/", h.resetPassword)

		r.With(middleware.Guard(deps.Auth)).Get("/me", h.me)
	})

	return r
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
