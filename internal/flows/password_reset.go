package flows

import (
	"context"
	"crypto/subtle"
	"log/slog"
)

type ResetPasswordMetrics struct {
	Success int
	Failure int
}

type ResetPasswordErrors struct {
	EngineNotReady     error
	Mismatch           error
	SamePassword       error
	NotVerified        error
	NotFound           error
	StorageUnavailable error
	CacheUnavailable   error
}

type ResetPasswordDeps struct {
	Common

	RequireVerifiedOTP bool

	PeekGrant     func(ctx context.Context, email string) ([]byte, error)
	ConsumeGrant  func(ctx context.Context, email string, encoded []byte) error
	RestoreGrant  func(ctx context.Context, email string, encoded []byte) error
	IsGrantAbsent func(error) bool

	FindByEmail        func(context.Context, string) (Identity, error)
	IsNotFound         func(error) bool
	VerifyPassword     func(hash, password string) (bool, error)
	HashPassword       func(string) (string, error)
	MapHashError       func(error) error
	UpdatePasswordHash func(ctx context.Context, agentUID, hash string) error

	Event   string
	Metrics ResetPasswordMetrics
	Errors  ResetPasswordErrors
}

// RunResetPassword replaces the credential for email. Every rejection happens before the
// reset grant is spent, so a caller who fixes their input can retry without a new OTP. A
// failed hash write puts the spent grant back for the same reason.
func RunResetPassword(ctx context.Context, email, newPassword, confirm string, deps ResetPasswordDeps) error {
	normalizeResetPasswordDeps(&deps)

	if deps.FindByEmail == nil || deps.VerifyPassword == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.RequireVerifiedOTP && (deps.PeekGrant == nil || deps.ConsumeGrant == nil) {
		return deps.Errors.EngineNotReady
	}

	fail := func(agentUID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, agentUID, email, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return err
	}

	switch {
	case email == "":
		return fail("", deps.Invalid("email", "required"), "invalid_input")
	case newPassword == "":
		return fail("", deps.Invalid("new_password", "required"), "invalid_input")
	case confirm == "":
		return fail("", deps.Invalid("confirm_password", "required"), "invalid_input")
	}
	if subtle.ConstantTimeCompare([]byte(newPassword), []byte(confirm)) != 1 {
		return fail("", deps.Errors.Mismatch, "mismatch")
	}

	var grant []byte
	if deps.RequireVerifiedOTP {
		raw, err := deps.PeekGrant(ctx, email)
		if err != nil {
			if deps.IsGrantAbsent(err) {
				return fail("", deps.Errors.NotVerified, "not_verified")
			}
			deps.Log(ctx, slog.LevelError, "reset grant lookup failed", "email", email, "error", err)
			return fail("", deps.Errors.CacheUnavailable, "grant_unavailable")
		}
		grant = raw
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			return fail("", deps.Errors.NotFound, "unknown_email")
		}
		deps.Log(ctx, slog.LevelError, "password reset lookup failed", "email", email, "error", err)
		return fail("", deps.Errors.StorageUnavailable, "lookup_failed")
	}

	same, err := deps.VerifyPassword(identity.PasswordHash, newPassword)
	if err != nil {
		deps.Log(ctx, slog.LevelWarn, "stored password hash could not be compared", "agent_uid", identity.AgentUID, "error", err)
	} else if same {
		return fail(identity.AgentUID, deps.Errors.SamePassword, "same_password")
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(identity.AgentUID, deps.MapHashError(err), "hash_policy")
	}

	if deps.RequireVerifiedOTP {
		if err := deps.ConsumeGrant(ctx, email, grant); err != nil {
			if deps.IsGrantAbsent(err) {
				return fail(identity.AgentUID, deps.Errors.NotVerified, "grant_spent")
			}
			deps.Log(ctx, slog.LevelError, "reset grant consume failed", "email", email, "error", err)
			return fail(identity.AgentUID, deps.Errors.CacheUnavailable, "grant_unavailable")
		}
	}

	if err := deps.UpdatePasswordHash(ctx, identity.AgentUID, newHash); err != nil {
		if deps.IsNotFound(err) {
			return fail(identity.AgentUID, deps.Errors.NotFound, "update_missing")
		}
		deps.Log(ctx, slog.LevelError, "password hash update failed", "agent_uid", identity.AgentUID, "error", err)
		if grant != nil && deps.RestoreGrant != nil {
			if rerr := deps.RestoreGrant(ctx, email, grant); rerr != nil {
				deps.Log(ctx, slog.LevelError, "reset grant restore failed", "email", email, "error", rerr)
			}
		}
		return fail(identity.AgentUID, deps.Errors.StorageUnavailable, "update_failed")
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Event, true, identity.AgentUID, email, nil, nil)
	return nil
}

func normalizeResetPasswordDeps(deps *ResetPasswordDeps) {
	normalizeCommon(&deps.Common, deps.Errors.EngineNotReady)
	if deps.IsGrantAbsent == nil {
		deps.IsGrantAbsent = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapHashError == nil {
		deps.MapHashError = func(err error) error { return err }
	}
}
