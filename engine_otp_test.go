package agentauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRequestPasswordResetMailsCode(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "Ada@Field.io")

	mail := h.mailer.last(t)
	if mail.to != "ada@field.io" {
		t.Fatalf("expected mail to normalized address, got %q", mail.to)
	}
	if mail.subject != "OTP Verification" {
		t.Fatalf("unexpected subject %q", mail.subject)
	}
	if !strings.Contains(mail.body, "valid for 5 minutes") {
		t.Fatalf("expected body to state the validity window, got %q", mail.body)
	}
	if len(code) != 4 || code < "1000" || code > "9999" {
		t.Fatalf("expected four-digit code, got %q", code)
	}

	if ttl := h.mr.TTL("aa:otp:ada@field.io"); ttl != 300*time.Second {
		t.Fatalf("expected challenge ttl 300s, got %s", ttl)
	}

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); err != nil {
		t.Fatalf("ConfirmOTP failed: %v", err)
	}
	if h.mr.Exists("aa:otp:ada@field.io") {
		t.Fatal("expected challenge to be spent after confirmation")
	}
	if !h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected reset grant after confirmation")
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)

	err := h.engine.RequestPasswordReset(context.Background(), "nobody@field.io")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if h.mailer.count() != 0 {
		t.Fatal("expected no mail for unknown email")
	}
}

func TestRequestPasswordResetEnumerationSafe(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordReset.EnumerationSafe = true
	h := newTestHarness(t, cfg, nil)

	if err := h.engine.RequestPasswordReset(context.Background(), "nobody@field.io"); err != nil {
		t.Fatalf("expected nil for unknown email in enumeration-safe mode, got %v", err)
	}
	if h.mailer.count() != 0 {
		t.Fatal("expected no mail for unknown email")
	}
	if h.mr.Exists("aa:otp:nobody@field.io") {
		t.Fatal("expected no challenge for unknown email")
	}
}

func TestRequestPasswordResetRequiresEmail(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)

	err := h.engine.RequestPasswordReset(context.Background(), "   ")
	requireValidationField(t, err, "email")
}

func TestConfirmOTPWrongThenRight(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "ada@field.io")

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", otherCode(code)); !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("expected ErrChallengeRejected, got %v", err)
	}
	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); err != nil {
		t.Fatalf("expected correct code to verify after a wrong attempt: %v", err)
	}
}

func TestConfirmOTPExpired(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "ada@field.io")

	h.mr.FastForward(301 * time.Second)

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestConfirmOTPNeverIssued(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)

	err := h.engine.ConfirmOTP(context.Background(), "nobody@field.io", "1234")
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestConfirmOTPSingleUse(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "ada@field.io")

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); err != nil {
		t.Fatalf("ConfirmOTP failed: %v", err)
	}
	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected second confirmation to find no challenge, got %v", err)
	}
}

func TestConfirmOTPReissueReplacesCode(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	first := h.issueCode(t, "ada@field.io")

	second := first
	for i := 0; i < 50 && second == first; i++ {
		second = h.issueCode(t, "ada@field.io")
	}
	if second == first {
		t.Fatal("expected a different code after repeated requests")
	}

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", first); !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("expected superseded code to be rejected, got %v", err)
	}
	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", second); err != nil {
		t.Fatalf("expected latest code to verify: %v", err)
	}
}

func TestConfirmOTPMalformedCode(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	for _, code := range []string{"abcd", "12a4", "-123", " 1234", "12.5"} {
		err := h.engine.ConfirmOTP(ctx, "ada@field.io", code)
		requireValidationField(t, err, "code")
	}

	requireValidationField(t, h.engine.ConfirmOTP(ctx, "ada@field.io", ""), "code")
	requireValidationField(t, h.engine.ConfirmOTP(ctx, "", "1234"), "email")
}

func TestConfirmOTPNumericOutOfRangeIsRejected(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", "99999"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired with no pending challenge, got %v", err)
	}

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "ada@field.io")

	for _, wrong := range []string{"0999", "0123", "12", "99999", "165535", "000000000000000000001"} {
		err := h.engine.ConfirmOTP(ctx, "ada@field.io", wrong)
		if !errors.Is(err, ErrChallengeRejected) {
			t.Fatalf("code %q: expected ErrChallengeRejected, got %v", wrong, err)
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.Fatalf("code %q: numeric code must not be a validation error", wrong)
		}
	}

	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", "0"+code); err != nil {
		t.Fatalf("expected pending challenge to survive wrong codes, got %v", err)
	}
}

func TestConfirmOTPConcurrentSingleWinner(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	code := h.issueCode(t, "ada@field.io")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- h.engine.ConfirmOTP(ctx, "ada@field.io", code)
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrChallengeExpired):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful confirmation, got %d", winners)
	}
}

func TestRequestPasswordResetDeliveryFailureRollsBack(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	h.mailer.err = errors.New("smtp: 451 try again later")

	err := h.engine.RequestPasswordReset(ctx, "ada@field.io")
	if !errors.Is(err, ErrOTPDeliveryFailed) {
		t.Fatalf("expected ErrOTPDeliveryFailed, got %v", err)
	}
	if h.mr.Exists("aa:otp:ada@field.io") {
		t.Fatal("expected undelivered challenge to be rolled back")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPDeliveryFailure]; got != 1 {
		t.Fatalf("expected delivery failure counted once, got %d", got)
	}
}

func TestRequestPasswordResetDeliveryFailureKeepsChallenge(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.RollbackOnDeliveryFailure = false
	h := newTestHarness(t, cfg, nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	h.mailer.err = errors.New("smtp: 451 try again later")

	if err := h.engine.RequestPasswordReset(ctx, "ada@field.io"); !errors.Is(err, ErrOTPDeliveryFailed) {
		t.Fatalf("expected ErrOTPDeliveryFailed, got %v", err)
	}
	if !h.mr.Exists("aa:otp:ada@field.io") {
		t.Fatal("expected challenge to remain without rollback")
	}
}

func TestRequestPasswordResetCacheUnavailable(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "pw")
	h.mr.Close()

	if err := h.engine.RequestPasswordReset(ctx, "ada@field.io"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if h.mailer.count() != 0 {
		t.Fatal("expected no mail when the challenge could not be stored")
	}
	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", "1234"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable from ConfirmOTP, got %v", err)
	}
}

func TestRequestPasswordResetStoreFailure(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	h.store.findErr = errors.New("db down")

	err := h.engine.RequestPasswordReset(context.Background(), "ada@field.io")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestRenderOTPBody(t *testing.T) {
	got := renderOTPBody("Your OTP is: {code}, valid for {minutes} minutes", 4821, 90*time.Second)
	if got != "Your OTP is: 4821, valid for 1 minutes" {
		t.Fatalf("unexpected body %q", got)
	}
	got = renderOTPBody("{code}/{minutes}", 1000, 10*time.Second)
	if got != "1000/1" {
		t.Fatalf("expected minutes to floor at 1, got %q", got)
	}
}
