package flows

import (
	"context"
	"log/slog"
)

// RegisterInput is the caller-supplied registration request after normalization.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	Status    uint8
}

type RegisterMetrics struct {
	Success  int
	Conflict int
	Invalid  int
}

type RegisterErrors struct {
	EngineNotReady     error
	StorageUnavailable error
}

type RegisterDeps struct {
	Common

	Normalize    func(RegisterInput) (RegisterInput, error)
	HashPassword func(string) (string, error)
	MapHashError func(error) error
	NewAgentUID  func() (string, error)
	CreateAgent  func(context.Context, Identity) (Identity, error)
	IsConflict   func(error) bool

	Event   string
	Metrics RegisterMetrics
	Errors  RegisterErrors
}

// RunRegister validates in, hashes the password and persists a new identity. A racing
// duplicate is rejected by the store and surfaces as its conflict error unchanged.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (Identity, error) {
	normalizeRegisterDeps(&deps)

	if deps.HashPassword == nil || deps.CreateAgent == nil || deps.NewAgentUID == nil {
		return Identity{}, deps.Errors.EngineNotReady
	}

	normalized, err := deps.Normalize(in)
	if err != nil {
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Event, false, "", in.Email, err, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return Identity{}, err
	}

	hash, err := deps.HashPassword(normalized.Password)
	if err != nil {
		mapped := deps.MapHashError(err)
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Event, false, "", normalized.Email, mapped, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return Identity{}, mapped
	}

	uid, err := deps.NewAgentUID()
	if err != nil {
		deps.Log(ctx, slog.LevelError, "agent uid generation failed", "error", err)
		return Identity{}, deps.Errors.StorageUnavailable
	}

	created, err := deps.CreateAgent(ctx, Identity{
		AgentUID:     uid,
		Email:        normalized.Email,
		FirstName:    normalized.FirstName,
		LastName:     normalized.LastName,
		Phone:        normalized.Phone,
		PasswordHash: hash,
		Status:       normalized.Status,
	})
	if err != nil {
		if deps.IsConflict(err) {
			deps.MetricInc(deps.Metrics.Conflict)
			deps.EmitAudit(ctx, deps.Event, false, "", normalized.Email, err, nil)
			return Identity{}, err
		}
		deps.Log(ctx, slog.LevelError, "create agent failed", "email", normalized.Email, "error", err)
		deps.EmitAudit(ctx, deps.Event, false, "", normalized.Email, deps.Errors.StorageUnavailable, nil)
		return Identity{}, deps.Errors.StorageUnavailable
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Event, true, created.AgentUID, created.Email, nil, nil)
	return created, nil
}

func normalizeRegisterDeps(deps *RegisterDeps) {
	normalizeCommon(&deps.Common, deps.Errors.EngineNotReady)
	if deps.Normalize == nil {
		deps.Normalize = func(in RegisterInput) (RegisterInput, error) { return in, nil }
	}
	if deps.MapHashError == nil {
		deps.MapHashError = func(err error) error { return err }
	}
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
}
