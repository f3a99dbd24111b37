package flows

import (
	"context"
	"log/slog"
	"time"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}

type LoginMetrics struct {
	Success  int
	Failure  int
	Inactive int
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	StorageUnavailable error
	TokenIssueFailed   error
}

type LoginDeps struct {
	Common

	UpgradeOnLogin bool

	FindByEmail        func(context.Context, string) (Identity, error)
	IsNotFound         func(error) bool
	VerifyPassword     func(hash, password string) (bool, error)
	DummyVerify        func(password string)
	NeedsUpgrade       func(hash string) bool
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, agentUID, hash string) error
	StatusError        func(uint8) error
	IssueToken         func(Identity) (string, time.Time, error)

	Event   string
	Metrics LoginMetrics
	Errors  LoginErrors
}

// RunLogin checks email/password and issues a session token. An unknown email and a wrong
// password are indistinguishable to the caller, including in timing.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.FindByEmail == nil || deps.VerifyPassword == nil || deps.IssueToken == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}
	if email == "" {
		return LoginResult{}, deps.Invalid("email", "required")
	}
	if password == "" {
		return LoginResult{}, deps.Invalid("password", "required")
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.DummyVerify(password)
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{
					"reason": "unknown_email",
				}
			})
			return LoginResult{}, deps.Errors.InvalidCredentials
		}
		deps.Log(ctx, slog.LevelError, "login lookup failed", "email", email, "error", err)
		deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.StorageUnavailable, nil)
		return LoginResult{}, deps.Errors.StorageUnavailable
	}

	ok, err := deps.VerifyPassword(identity.PasswordHash, password)
	if err != nil {
		deps.Log(ctx, slog.LevelWarn, "stored password hash could not be verified", "agent_uid", identity.AgentUID, "error", err)
		ok = false
	}
	if !ok {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, identity.AgentUID, email, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "password_mismatch",
			}
		})
		return LoginResult{}, deps.Errors.InvalidCredentials
	}

	if statusErr := deps.StatusError(identity.Status); statusErr != nil {
		deps.MetricInc(deps.Metrics.Inactive)
		deps.EmitAudit(ctx, deps.Event, false, identity.AgentUID, email, statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
			}
		})
		return LoginResult{}, statusErr
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade(identity.PasswordHash) {
		upgradeHash(ctx, &identity, password, deps)
	}

	token, expiresAt, err := deps.IssueToken(identity)
	if err != nil {
		deps.Log(ctx, slog.LevelError, "token issuance failed", "agent_uid", identity.AgentUID, "error", err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, identity.AgentUID, email, deps.Errors.TokenIssueFailed, nil)
		return LoginResult{}, deps.Errors.TokenIssueFailed
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Event, true, identity.AgentUID, email, nil, nil)
	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  identity,
	}, nil
}

// upgradeHash rehashes with the current policy. Failures are logged and never fail the login.
// A successful update bumps the stored credential version, so identity is advanced to match.
func upgradeHash(ctx context.Context, identity *Identity, password string, deps LoginDeps) {
	if deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	newHash, err := deps.HashPassword(password)
	if err != nil {
		deps.Log(ctx, slog.LevelWarn, "password hash upgrade generation failed", "agent_uid", identity.AgentUID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, identity.AgentUID, newHash); err != nil {
		deps.Log(ctx, slog.LevelWarn, "password hash upgrade update failed", "agent_uid", identity.AgentUID, "error", err)
		return
	}
	identity.PasswordHash = newHash
	identity.CredentialVersion++
}

func normalizeLoginDeps(deps *LoginDeps) {
	normalizeCommon(&deps.Common, deps.Errors.InvalidCredentials)
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
	if deps.NeedsUpgrade == nil {
		deps.NeedsUpgrade = func(string) bool { return false }
	}
	if deps.StatusError == nil {
		deps.StatusError = func(uint8) error { return nil }
	}
}
