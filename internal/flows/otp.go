package flows

import (
	"context"
	"log/slog"
	"time"
)

type RequestResetMetrics struct {
	Issued          int
	DeliveryFailure int
	Unavailable     int
}

type RequestResetErrors struct {
	EngineNotReady     error
	NotFound           error
	StorageUnavailable error
	CacheUnavailable   error
	DeliveryFailed     error
	Internal           error
}

type RequestResetDeps struct {
	Common

	EnumerationSafe           bool
	ChallengeTTL              time.Duration
	RollbackOnDeliveryFailure bool

	FindByEmail           func(context.Context, string) (Identity, error)
	IsNotFound            func(error) bool
	SleepEnumerationDelay func(context.Context) error

	GenerateCode     func() (int, error)
	SaveChallenge    func(ctx context.Context, email string, code int, issuedAt time.Time, ttl time.Duration) ([]byte, error)
	DiscardChallenge func(ctx context.Context, email string, encoded []byte) (bool, error)

	SendMail    func(ctx context.Context, to, subject, body string) error
	MailSubject string
	MailBody    func(code int) string

	Event   string
	Metrics RequestResetMetrics
	Errors  RequestResetErrors
}

// RunRequestPasswordReset issues a fresh challenge for email, replacing any pending one, and
// mails the code. The challenge is stored before mailing so a delivered code is always
// verifiable.
func RunRequestPasswordReset(ctx context.Context, email string, deps RequestResetDeps) error {
	normalizeRequestResetDeps(&deps)

	if deps.FindByEmail == nil || deps.GenerateCode == nil || deps.SaveChallenge == nil || deps.SendMail == nil {
		return deps.Errors.EngineNotReady
	}
	if email == "" {
		return deps.Invalid("email", "required")
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			deps.Log(ctx, slog.LevelError, "password reset lookup failed", "email", email, "error", err)
			deps.MetricInc(deps.Metrics.Unavailable)
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.StorageUnavailable, nil)
			return deps.Errors.StorageUnavailable
		}
		if !deps.EnumerationSafe {
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.NotFound, nil)
			return deps.Errors.NotFound
		}
		if sleepErr := deps.SleepEnumerationDelay(ctx); sleepErr != nil {
			return sleepErr
		}
		deps.EmitAudit(ctx, deps.Event, true, "", email, nil, func() map[string]string {
			return map[string]string{
				"enumeration_safe": "true",
			}
		})
		return nil
	}

	code, err := deps.GenerateCode()
	if err != nil {
		deps.Log(ctx, slog.LevelError, "otp generation failed", "error", err)
		return deps.Errors.Internal
	}

	encoded, err := deps.SaveChallenge(ctx, email, code, deps.Now(), deps.ChallengeTTL)
	if err != nil {
		deps.Log(ctx, slog.LevelError, "otp challenge store failed", "email", email, "error", err)
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Event, false, identity.AgentUID, email, deps.Errors.CacheUnavailable, nil)
		return deps.Errors.CacheUnavailable
	}

	if err := deps.SendMail(ctx, email, deps.MailSubject, deps.MailBody(code)); err != nil {
		deps.Log(ctx, slog.LevelWarn, "otp delivery failed", "email", email, "error", err)
		deps.MetricInc(deps.Metrics.DeliveryFailure)

		rolledBack := false
		if deps.RollbackOnDeliveryFailure && deps.DiscardChallenge != nil {
			deleted, discardErr := deps.DiscardChallenge(ctx, email, encoded)
			if discardErr != nil {
				deps.Log(ctx, slog.LevelError, "otp rollback failed", "email", email, "error", discardErr)
			}
			rolledBack = deleted
		}

		deps.EmitAudit(ctx, deps.Event, false, identity.AgentUID, email, deps.Errors.DeliveryFailed, func() map[string]string {
			if rolledBack {
				return map[string]string{"rolled_back": "true"}
			}
			return map[string]string{"rolled_back": "false"}
		})
		return deps.Errors.DeliveryFailed
	}

	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Event, true, identity.AgentUID, email, nil, nil)
	return nil
}

type ConfirmOTPMetrics struct {
	Verified    int
	Expired     int
	Rejected    int
	Unavailable int
}

type ConfirmOTPErrors struct {
	EngineNotReady   error
	Expired          error
	Rejected         error
	CacheUnavailable error
}

type ConfirmOTPDeps struct {
	Common

	ParseCode        func(string) (int, error)
	ConsumeChallenge func(ctx context.Context, email string, code int) error
	IsAbsent         func(error) bool
	IsMismatch       func(error) bool
	GrantReset       func(ctx context.Context, email string) error

	Event   string
	Metrics ConfirmOTPMetrics
	Errors  ConfirmOTPErrors
}

// RunConfirmOTP checks code against the pending challenge for email. A match spends the
// challenge and grants one password reset. A mismatch leaves the challenge pending. A
// missing challenge, whether expired or never issued, reports Expired.
func RunConfirmOTP(ctx context.Context, email, code string, deps ConfirmOTPDeps) error {
	normalizeConfirmOTPDeps(&deps)

	if deps.ParseCode == nil || deps.ConsumeChallenge == nil || deps.GrantReset == nil {
		return deps.Errors.EngineNotReady
	}
	if email == "" {
		return deps.Invalid("email", "required")
	}
	if code == "" {
		return deps.Invalid("code", "required")
	}

	parsed, err := deps.ParseCode(code)
	if err != nil {
		return deps.Invalid("code", "must be a numeric passcode")
	}

	if err := deps.ConsumeChallenge(ctx, email, parsed); err != nil {
		switch {
		case deps.IsAbsent(err):
			deps.MetricInc(deps.Metrics.Expired)
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.Expired, nil)
			return deps.Errors.Expired
		case deps.IsMismatch(err):
			deps.MetricInc(deps.Metrics.Rejected)
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.Rejected, nil)
			return deps.Errors.Rejected
		default:
			deps.Log(ctx, slog.LevelError, "otp verification failed", "email", email, "error", err)
			deps.MetricInc(deps.Metrics.Unavailable)
			deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.CacheUnavailable, nil)
			return deps.Errors.CacheUnavailable
		}
	}

	if err := deps.GrantReset(ctx, email); err != nil {
		deps.Log(ctx, slog.LevelError, "reset grant store failed", "email", email, "error", err)
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Event, false, "", email, deps.Errors.CacheUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "grant_write_failed",
			}
		})
		return deps.Errors.CacheUnavailable
	}

	deps.MetricInc(deps.Metrics.Verified)
	deps.EmitAudit(ctx, deps.Event, true, "", email, nil, nil)
	return nil
}

func normalizeRequestResetDeps(deps *RequestResetDeps) {
	normalizeCommon(&deps.Common, deps.Errors.EngineNotReady)
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.SleepEnumerationDelay == nil {
		deps.SleepEnumerationDelay = func(context.Context) error { return nil }
	}
	if deps.MailBody == nil {
		deps.MailBody = func(int) string { return "" }
	}
	if deps.Errors.Internal == nil {
		deps.Errors.Internal = deps.Errors.CacheUnavailable
	}
}

func normalizeConfirmOTPDeps(deps *ConfirmOTPDeps) {
	normalizeCommon(&deps.Common, deps.Errors.EngineNotReady)
	if deps.IsAbsent == nil {
		deps.IsAbsent = func(error) bool { return false }
	}
	if deps.IsMismatch == nil {
		deps.IsMismatch = func(error) bool { return false }
	}
}
