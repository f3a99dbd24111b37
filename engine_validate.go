package agentauth

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/fieldops/agentauth/internal/flows"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ValidateToken describes the validate token operation and its observable behavior.
//
// ValidateToken checks signature, algorithm and expiry and returns the claims. An expired
// token returns [ErrTokenExpired]; any other parse failure returns [ErrTokenInvalid]. With
// JWT.BindCredentialVersion the identity is re-read: a changed credential version or a
// missing identity returns [ErrTokenRevoked] and a non-active agent [ErrAgentInactive].
func (e *Engine) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := internalflows.RunValidateToken(ctx, token, e.validateDeps())
	if err != nil {
		return nil, err
	}
	return &TokenClaims{
		Email:             claims.Subject,
		AgentUID:          claims.AgentUID,
		CredentialVersion: claims.CredentialVersion,
		IssuedAt:          claims.IssuedAt,
		ExpiresAt:         claims.ExpiresAt,
	}, nil
}

func (e *Engine) validateDeps() internalflows.ValidateDeps {
	deps := internalflows.ValidateDeps{
		Common:                e.commonDeps(),
		BindCredentialVersion: e.config.JWT.BindCredentialVersion,
		ParseToken:            e.parseToken,
		MapParseError:         mapTokenError,
		IsNotFound:            isAgentNotFound,
		StatusError:           statusError,
		ObserveLatency: func(d time.Duration) {
			e.metrics.Observe(MetricValidateLatency, d)
		},
		Event: auditEventTokenValidate,
		Metrics: internalflows.ValidateMetrics{
			Success:     int(MetricTokenValidateSuccess),
			Failure:     int(MetricTokenValidateFailure),
			Revoked:     int(MetricTokenRevoked),
			Unavailable: int(MetricBackendUnavailable),
		},
		Errors: internalflows.ValidateErrors{
			EngineNotReady:     ErrEngineNotReady,
			TokenInvalid:       ErrTokenInvalid,
			TokenRevoked:       ErrTokenRevoked,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}
	if e.store != nil {
		deps.FindByEmail = e.findIdentity
	}
	return deps
}

func (e *Engine) parseToken(token string) (internalflows.TokenClaims, error) {
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return internalflows.TokenClaims{}, err
	}

	out := internalflows.TokenClaims{
		Subject:           claims.Subject,
		AgentUID:          claims.AgentUID,
		CredentialVersion: claims.CredentialVersion,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func mapTokenError(err error) error {
	if errors.Is(err, jwtlib.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
