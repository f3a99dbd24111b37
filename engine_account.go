package agentauth

import (
	"context"
	"strings"

	internalflows "github.com/fieldops/agentauth/internal/flows"
	"github.com/google/uuid"
)

// Register describes the register operation and its observable behavior.
//
// Register trims every field, lowercases the email, hashes the password and persists a new
// active identity. It returns a [*ValidationError] for missing or malformed fields,
// [ErrPasswordPolicy] for a password the policy refuses, and a [*ConflictError] when the
// email or phone is already registered. Nothing is persisted on failure.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AgentIdentity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var created AgentIdentity
	_, err := internalflows.RunRegister(ctx, internalflows.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		Status:    uint8(req.Status),
	}, e.registerDeps(&created))
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (e *Engine) registerDeps(created *AgentIdentity) internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		Common:       e.commonDeps(),
		Normalize:    normalizeRegistration,
		HashPassword: e.hashPassword,
		MapHashError: e.mapHashError,
		NewAgentUID: func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		CreateAgent: func(ctx context.Context, in internalflows.Identity) (internalflows.Identity, error) {
			agent, err := e.store.CreateAgent(ctx, NewAgent{
				UID:          in.AgentUID,
				FirstName:    in.FirstName,
				LastName:     in.LastName,
				Email:        in.Email,
				Phone:        in.Phone,
				PasswordHash: in.PasswordHash,
				Status:       AgentStatus(in.Status),
			})
			if err != nil {
				return internalflows.Identity{}, err
			}
			*created = agent
			return toFlowIdentity(agent), nil
		},
		IsConflict: isConflict,
		Event:      auditEventRegister,
		Metrics: internalflows.RegisterMetrics{
			Success:  int(MetricRegisterSuccess),
			Conflict: int(MetricRegisterConflict),
			Invalid:  int(MetricRegisterInvalid),
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady:     ErrEngineNotReady,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}
}

func normalizeRegistration(in internalflows.RegisterInput) (internalflows.RegisterInput, error) {
	out := internalflows.RegisterInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     normalizeEmail(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Password:  in.Password,
		Status:    in.Status,
	}

	switch {
	case out.FirstName == "":
		return out, newValidationError("first_name", "required")
	case out.LastName == "":
		return out, newValidationError("last_name", "required")
	case out.Email == "":
		return out, newValidationError("email", "required")
	case !validEmail(out.Email):
		return out, newValidationError("email", "must be an address of the form name@domain")
	case out.Phone == "":
		return out, newValidationError("phone", "required")
	case out.Password == "":
		return out, newValidationError("password", "required")
	case AgentStatus(out.Status) > StatusSuspended:
		return out, newValidationError("status", "unknown status")
	}
	return out, nil
}

func validEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	return !strings.Contains(domain, "@") && !strings.ContainsAny(email, " \t\r\n")
}
