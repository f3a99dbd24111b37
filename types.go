package agentauth

import (
	"context"
	"time"
)

// AgentStatus represents the lifecycle state of an agent identity.
type AgentStatus uint8

const (
	// StatusActive agents may log in and hold valid tokens.
	StatusActive AgentStatus = iota
	// StatusInactive agents are kept on record but may not authenticate.
	StatusInactive
	// StatusSuspended agents are blocked pending review.
	StatusSuspended
)

func (s AgentStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// ParseAgentStatus maps the stored text form back to an AgentStatus.
func ParseAgentStatus(s string) (AgentStatus, bool) {
	switch s {
	case "active":
		return StatusActive, true
	case "inactive":
		return StatusInactive, true
	case "suspended":
		return StatusSuspended, true
	default:
		return 0, false
	}
}

// AgentIdentity is the stored record for one field agent. PasswordHash always holds a
// one-way hash, never the submitted password.
type AgentIdentity struct {
	ID                int64
	UID               string
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	PasswordHash      string
	Status            AgentStatus
	CredentialVersion uint32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAgent is the insert payload passed to [CredentialStore.CreateAgent].
type NewAgent struct {
	UID          string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Status       AgentStatus
}

// CredentialStore is the relational identity store the engine reads and mutates.
//
// FindByEmail returns [ErrAgentNotFound] (possibly wrapped) when no identity matches.
// CreateAgent must reject a duplicate email or phone atomically with a [*ConflictError].
// UpdatePasswordHash replaces the hash for the agent with uid and increments its
// credential version in the same write. Any other error is treated as an outage.
type CredentialStore interface {
	CreateAgent(ctx context.Context, agent NewAgent) (AgentIdentity, error)
	FindByEmail(ctx context.Context, email string) (AgentIdentity, error)
	UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error
}

// Mailer delivers a plain-text message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// RegisterRequest carries the registration fields. Status defaults to active.
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	Status    AgentStatus
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Agent     AgentIdentity
}

// TokenClaims is the verified content of a session token.
type TokenClaims struct {
	Email             string
	AgentUID          string
	CredentialVersion uint32
	IssuedAt          time.Time
	ExpiresAt         time.Time
}
