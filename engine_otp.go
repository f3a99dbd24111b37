package agentauth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/fieldops/agentauth/internal"
	internalflows "github.com/fieldops/agentauth/internal/flows"
	"github.com/fieldops/agentauth/internal/stores"
)

// RequestPasswordReset describes the request password reset operation and its observable behavior.
//
// RequestPasswordReset issues a fresh numeric passcode for email, replacing any pending one,
// stores it for OTP.TTL and mails it. It returns [ErrAgentNotFound] for an unknown email
// unless PasswordReset.EnumerationSafe is set, in which case it waits a short random delay
// and returns nil. A mail failure returns [ErrOTPDeliveryFailed]; with
// OTP.RollbackOnDeliveryFailure the undelivered challenge is removed first.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() || e.otpStore == nil || e.mailer == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunRequestPasswordReset(ctx, normalizeEmail(email), e.requestResetDeps())
}

// ConfirmOTP describes the confirm otp operation and its observable behavior.
//
// ConfirmOTP returns nil when code matches the pending challenge for email. The challenge
// is then spent and one password reset is granted for PasswordReset.GrantTTL. A wrong code
// returns [ErrChallengeRejected] and the challenge stays pending. No pending challenge,
// whether expired or never issued, returns [ErrChallengeExpired]. A non-numeric or
// out-of-range code returns a [*ValidationError] for field "code".
func (e *Engine) ConfirmOTP(ctx context.Context, email, code string) error {
	if e == nil || e.otpStore == nil || e.grantStore == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunConfirmOTP(ctx, normalizeEmail(email), strings.TrimSpace(code), e.confirmOTPDeps())
}

func (e *Engine) requestResetDeps() internalflows.RequestResetDeps {
	cfg := e.config.OTP
	return internalflows.RequestResetDeps{
		Common:                    e.commonDeps(),
		EnumerationSafe:           e.config.PasswordReset.EnumerationSafe,
		ChallengeTTL:              cfg.TTL,
		RollbackOnDeliveryFailure: cfg.RollbackOnDeliveryFailure,
		FindByEmail:               e.findIdentity,
		IsNotFound:                isAgentNotFound,
		SleepEnumerationDelay:     sleepPasswordResetEnumerationDelay,
		GenerateCode: func() (int, error) {
			return internal.NewOTPCode(cfg.CodeMin, cfg.CodeMax)
		},
		SaveChallenge: func(ctx context.Context, email string, code int, issuedAt time.Time, ttl time.Duration) ([]byte, error) {
			return e.otpStore.Save(ctx, email, stores.OTPRecord{
				Code:     uint16(code),
				IssuedAt: issuedAt.Unix(),
			}, ttl)
		},
		DiscardChallenge: e.otpStore.Discard,
		SendMail:         e.mailer.Send,
		MailSubject:      cfg.Subject,
		MailBody: func(code int) string {
			return renderOTPBody(cfg.BodyTemplate, code, cfg.TTL)
		},
		Event: auditEventOTPIssue,
		Metrics: internalflows.RequestResetMetrics{
			Issued:          int(MetricOTPIssued),
			DeliveryFailure: int(MetricOTPDeliveryFailure),
			Unavailable:     int(MetricBackendUnavailable),
		},
		Errors: internalflows.RequestResetErrors{
			EngineNotReady:     ErrEngineNotReady,
			NotFound:           ErrAgentNotFound,
			StorageUnavailable: ErrStorageUnavailable,
			CacheUnavailable:   ErrCacheUnavailable,
			DeliveryFailed:     ErrOTPDeliveryFailed,
			Internal:           ErrInternal,
		},
	}
}

func (e *Engine) confirmOTPDeps() internalflows.ConfirmOTPDeps {
	return internalflows.ConfirmOTPDeps{
		Common:    e.commonDeps(),
		ParseCode: internal.ParseOTPCode,
		ConsumeChallenge: func(ctx context.Context, email string, code int) error {
			return e.otpStore.Consume(ctx, email, code)
		},
		IsAbsent: func(err error) bool {
			return errors.Is(err, stores.ErrOTPNotFound)
		},
		IsMismatch: func(err error) bool {
			return errors.Is(err, stores.ErrOTPMismatch)
		},
		GrantReset: e.grantReset,
		Event:      auditEventOTPVerify,
		Metrics: internalflows.ConfirmOTPMetrics{
			Verified:    int(MetricOTPVerified),
			Expired:     int(MetricOTPExpired),
			Rejected:    int(MetricOTPRejected),
			Unavailable: int(MetricBackendUnavailable),
		},
		Errors: internalflows.ConfirmOTPErrors{
			EngineNotReady:   ErrEngineNotReady,
			Expired:          ErrChallengeExpired,
			Rejected:         ErrChallengeRejected,
			CacheUnavailable: ErrCacheUnavailable,
		},
	}
}

func (e *Engine) grantReset(ctx context.Context, email string) error {
	if !e.config.PasswordReset.RequireVerifiedOTP {
		return nil
	}
	nonce, err := internal.NewNonce()
	if err != nil {
		return err
	}
	return e.grantStore.Save(ctx, email, stores.ResetGrant{
		Nonce:    nonce,
		IssuedAt: time.Now().Unix(),
	}, e.config.PasswordReset.GrantTTL)
}

func renderOTPBody(template string, code int, ttl time.Duration) string {
	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return strings.NewReplacer(
		"{code}", strconv.Itoa(code),
		"{minutes}", strconv.Itoa(minutes),
	).Replace(template)
}

func sleepPasswordResetEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
