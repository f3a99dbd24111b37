package agentauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	internalaudit "github.com/fieldops/agentauth/internal/audit"
	internalflows "github.com/fieldops/agentauth/internal/flows"
	"github.com/fieldops/agentauth/internal/stores"
	"github.com/fieldops/agentauth/jwt"
	"github.com/fieldops/agentauth/password"
)

// Engine is the agent authentication and credential-recovery core. Build one with [New]
// and [Builder.Build]; its methods are safe for concurrent use.
type Engine struct {
	config Config

	store  CredentialStore
	mailer Mailer
	logger *slog.Logger

	hasher     password.Hasher
	dummyHash  string
	jwtManager *jwt.Manager

	otpStore   *stores.OTPStore
	grantStore *stores.ResetGrantStore

	audit   *internalaudit.Dispatcher
	metrics *Metrics
}

// Close flushes buffered audit events and logs a warning if any were lost. The Engine
// must not be used afterwards.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()

	stats := e.audit.Stats()
	if stats.Shed+stats.Failed > 0 {
		e.log(context.Background(), slog.LevelWarn, "audit events lost",
			"delivered", stats.Delivered,
			"shed", stats.Shed,
			"failed", stats.Failed,
			"by_event", stats.LostByType,
		)
	}
}

// AuditDropped reports how many audit events never reached the sink, either shed from a
// full buffer or lost to a panicking sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricIncInt(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Log(ctx, level, "agentauth: "+msg, args...)
}

func (e *Engine) commonDeps() internalflows.Common {
	return internalflows.Common{
		Now:       time.Now,
		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,
		Log:       e.log,
		Invalid:   newValidationError,
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.hasher != nil && e.jwtManager != nil
}

/*
====================================
IDENTITY ADAPTERS
====================================
*/

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toFlowIdentity(a AgentIdentity) internalflows.Identity {
	return internalflows.Identity{
		AgentUID:          a.UID,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Phone:             a.Phone,
		PasswordHash:      a.PasswordHash,
		Status:            uint8(a.Status),
		CredentialVersion: a.CredentialVersion,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func (e *Engine) findIdentity(ctx context.Context, email string) (internalflows.Identity, error) {
	agent, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return internalflows.Identity{}, err
	}
	return toFlowIdentity(agent), nil
}

func (e *Engine) updatePasswordHash(ctx context.Context, agentUID, hash string) error {
	return e.store.UpdatePasswordHash(ctx, agentUID, hash)
}

func isAgentNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func statusError(status uint8) error {
	if AgentStatus(status) != StatusActive {
		return ErrAgentInactive
	}
	return nil
}

/*
====================================
PASSWORD POLICY
====================================
*/

func (e *Engine) hashPassword(plain string) (string, error) {
	if utf8.RuneCountInString(plain) < e.config.Password.MinLength {
		return "", fmt.Errorf("%w: password shorter than %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	return e.hasher.Hash(plain)
}

func (e *Engine) mapHashError(err error) error {
	switch {
	case errors.Is(err, ErrPasswordPolicy):
		return err
	case errors.Is(err, password.ErrPasswordEmpty),
		errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	default:
		e.log(context.Background(), slog.LevelError, "password hashing failed", "error", err)
		return ErrInternal
	}
}

func (e *Engine) verifyPassword(hash, plain string) (bool, error) {
	return e.hasher.Verify(plain, hash)
}

func (e *Engine) dummyVerify(plain string) {
	_, _ = e.hasher.Verify(plain, e.dummyHash)
}

func (e *Engine) needsUpgrade(hash string) bool {
	upgrade, err := e.hasher.NeedsUpgrade(hash)
	return err == nil && upgrade
}
