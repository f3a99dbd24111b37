package agentauth

import (
	"context"
	"time"

	internalflows "github.com/fieldops/agentauth/internal/flows"
)

// Login describes the login operation and its observable behavior.
//
// Login verifies password against the stored hash for email and returns a signed session
// token expiring AccessTTL from now. An unknown email and a wrong password both return
// [ErrInvalidCredentials]. A correct password for a non-active agent returns
// [ErrAgentInactive]. With Password.UpgradeOnLogin an outdated hash is replaced in passing.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var agent AgentIdentity
	res, err := internalflows.RunLogin(ctx, normalizeEmail(email), password, e.loginDeps(&agent))
	if err != nil {
		return nil, err
	}

	// A hash upgrade during login advances both fields.
	agent.PasswordHash = res.Identity.PasswordHash
	agent.CredentialVersion = res.Identity.CredentialVersion
	return &LoginResult{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Agent:     agent,
	}, nil
}

func (e *Engine) loginDeps(found *AgentIdentity) internalflows.LoginDeps {
	return internalflows.LoginDeps{
		Common:         e.commonDeps(),
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		FindByEmail: func(ctx context.Context, email string) (internalflows.Identity, error) {
			agent, err := e.store.FindByEmail(ctx, email)
			if err != nil {
				return internalflows.Identity{}, err
			}
			*found = agent
			return toFlowIdentity(agent), nil
		},
		IsNotFound:         isAgentNotFound,
		VerifyPassword:     e.verifyPassword,
		DummyVerify:        e.dummyVerify,
		NeedsUpgrade:       e.needsUpgrade,
		HashPassword:       e.hashPassword,
		UpdatePasswordHash: e.updatePasswordHash,
		StatusError:        statusError,
		IssueToken: func(identity internalflows.Identity) (string, time.Time, error) {
			return e.jwtManager.Issue(identity.Email, identity.AgentUID, identity.CredentialVersion)
		},
		Event: auditEventLogin,
		Metrics: internalflows.LoginMetrics{
			Success:  int(MetricLoginSuccess),
			Failure:  int(MetricLoginFailure),
			Inactive: int(MetricLoginInactive),
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			StorageUnavailable: ErrStorageUnavailable,
			TokenIssueFailed:   ErrTokenIssueFailed,
		},
	}
}
