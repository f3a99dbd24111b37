package agentauth

import (
	"context"
	"errors"

	internalflows "github.com/fieldops/agentauth/internal/flows"
	"github.com/fieldops/agentauth/internal/stores"
)

// ResetPassword describes the reset password operation and its observable behavior.
//
// ResetPassword replaces the credential for email. Checks run in this order: required
// fields, [ErrPasswordMismatch] when confirm differs, [ErrResetNotVerified] without a live
// reset grant from ConfirmOTP, [ErrAgentNotFound], [ErrSamePassword] when newPassword
// verifies against the current hash, and [ErrPasswordPolicy]. Only then is the grant spent
// and the hash written. If the write fails with [ErrStorageUnavailable] the grant is put
// back so the caller can retry without a new OTP. The write bumps the credential version, which revokes earlier
// tokens when JWT.BindCredentialVersion is set.
func (e *Engine) ResetPassword(ctx context.Context, email, newPassword, confirm string) error {
	if !e.ready() || e.grantStore == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunResetPassword(ctx, normalizeEmail(email), newPassword, confirm, e.resetPasswordDeps())
}

func (e *Engine) resetPasswordDeps() internalflows.ResetPasswordDeps {
	return internalflows.ResetPasswordDeps{
		Common:             e.commonDeps(),
		RequireVerifiedOTP: e.config.PasswordReset.RequireVerifiedOTP,
		PeekGrant: func(ctx context.Context, email string) ([]byte, error) {
			_, raw, err := e.grantStore.Get(ctx, email)
			return raw, err
		},
		ConsumeGrant: e.grantStore.Consume,
		RestoreGrant: func(ctx context.Context, email string, encoded []byte) error {
			return e.grantStore.Restore(ctx, email, encoded, e.config.PasswordReset.GrantTTL)
		},
		IsGrantAbsent: func(err error) bool {
			return errors.Is(err, stores.ErrGrantNotFound)
		},
		FindByEmail:        e.findIdentity,
		IsNotFound:         isAgentNotFound,
		VerifyPassword:     e.verifyPassword,
		HashPassword:       e.hashPassword,
		MapHashError:       e.mapHashError,
		UpdatePasswordHash: e.updatePasswordHash,
		Event:              auditEventPasswordReset,
		Metrics: internalflows.ResetPasswordMetrics{
			Success: int(MetricPasswordResetSuccess),
			Failure: int(MetricPasswordResetFailure),
		},
		Errors: internalflows.ResetPasswordErrors{
			EngineNotReady:     ErrEngineNotReady,
			Mismatch:           ErrPasswordMismatch,
			SamePassword:       ErrSamePassword,
			NotVerified:        ErrResetNotVerified,
			NotFound:           ErrAgentNotFound,
			StorageUnavailable: ErrStorageUnavailable,
			CacheUnavailable:   ErrCacheUnavailable,
		},
	}
}
