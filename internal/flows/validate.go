package flows

import (
	"context"
	"log/slog"
	"time"
)

// TokenClaims is the flow-local view of a verified session token.
type TokenClaims struct {
	Subject           string
	AgentUID          string
	CredentialVersion uint32
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

type ValidateMetrics struct {
	Success     int
	Failure     int
	Revoked     int
	Unavailable int
}

type ValidateErrors struct {
	EngineNotReady     error
	TokenInvalid       error
	TokenRevoked       error
	StorageUnavailable error
}

type ValidateDeps struct {
	Common

	BindCredentialVersion bool

	ParseToken    func(string) (TokenClaims, error)
	MapParseError func(error) error
	FindByEmail   func(context.Context, string) (Identity, error)
	IsNotFound    func(error) bool
	StatusError   func(uint8) error

	ObserveLatency func(time.Duration)

	Event   string
	Metrics ValidateMetrics
	Errors  ValidateErrors
}

// RunValidateToken verifies signature and expiry. With BindCredentialVersion it also
// re-reads the identity, so a token minted before a password reset or for an agent that is
// no longer active is refused.
func RunValidateToken(ctx context.Context, token string, deps ValidateDeps) (TokenClaims, error) {
	normalizeValidateDeps(&deps)

	if deps.ParseToken == nil {
		return TokenClaims{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Now().Sub(start))
	}()

	if token == "" {
		deps.MetricInc(deps.Metrics.Failure)
		return TokenClaims{}, deps.Errors.TokenInvalid
	}

	claims, err := deps.ParseToken(token)
	if err != nil {
		mapped := deps.MapParseError(err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, "", "", mapped, nil)
		return TokenClaims{}, mapped
	}

	if !deps.BindCredentialVersion || deps.FindByEmail == nil {
		deps.MetricInc(deps.Metrics.Success)
		return claims, nil
	}

	identity, err := deps.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.Revoked)
			deps.EmitAudit(ctx, deps.Event, false, claims.AgentUID, claims.Subject, deps.Errors.TokenRevoked, func() map[string]string {
				return map[string]string{
					"reason": "identity_missing",
				}
			})
			return TokenClaims{}, deps.Errors.TokenRevoked
		}
		deps.Log(ctx, slog.LevelError, "token identity lookup failed", "agent_uid", claims.AgentUID, "error", err)
		deps.MetricInc(deps.Metrics.Unavailable)
		return TokenClaims{}, deps.Errors.StorageUnavailable
	}

	if identity.AgentUID != claims.AgentUID || identity.CredentialVersion != claims.CredentialVersion {
		deps.MetricInc(deps.Metrics.Revoked)
		deps.EmitAudit(ctx, deps.Event, false, claims.AgentUID, claims.Subject, deps.Errors.TokenRevoked, func() map[string]string {
			return map[string]string{
				"reason": "credential_version",
			}
		})
		return TokenClaims{}, deps.Errors.TokenRevoked
	}

	if statusErr := deps.StatusError(identity.Status); statusErr != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, claims.AgentUID, claims.Subject, statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
			}
		})
		return TokenClaims{}, statusErr
	}

	deps.MetricInc(deps.Metrics.Success)
	return claims, nil
}

func normalizeValidateDeps(deps *ValidateDeps) {
	normalizeCommon(&deps.Common, deps.Errors.TokenInvalid)
	if deps.MapParseError == nil {
		deps.MapParseError = func(error) error { return deps.Errors.TokenInvalid }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.StatusError == nil {
		deps.StatusError = func(uint8) error { return nil }
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
}
