package flows

import (
	"context"
	"log/slog"
	"time"
)

// Identity is the flow-local agent record shared by every flow.
type Identity struct {
	AgentUID          string
	Email             string
	FirstName         string
	LastName          string
	Phone             string
	PasswordHash      string
	Status            uint8
	CredentialVersion uint32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditFunc matches the engine's audit emitter.
type AuditFunc func(ctx context.Context, event string, success bool, agentUID, email string, err error, metadata func() map[string]string)

// LogFunc matches slog.Logger.Log.
type LogFunc func(ctx context.Context, level slog.Level, msg string, args ...any)

// Common holds the dependencies every flow needs.
type Common struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit AuditFunc
	Log       LogFunc

	// Invalid builds the caller-input error for field.
	Invalid func(field, reason string) error
}

// Deps groups flow dependency sets. Root engine builds this per call and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Register      RegisterDeps
	Login         LoginDeps
	RequestReset  RequestResetDeps
	ConfirmOTP    ConfirmOTPDeps
	ResetPassword ResetPasswordDeps
	Validate      ValidateDeps
}

func normalizeCommon(c *Common, fallback error) {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if c.Log == nil {
		c.Log = func(context.Context, slog.Level, string, ...any) {}
	}
	if c.Invalid == nil {
		c.Invalid = func(string, string) error { return fallback }
	}
}
