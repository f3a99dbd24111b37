package agentauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// verifiedAgent registers email and confirms a reset passcode for it.
func verifiedAgent(t *testing.T, h *testHarness, email, password string) {
	t.Helper()

	h.register(t, email, "+15550001", password)
	code := h.issueCode(t, email)
	if err := h.engine.ConfirmOTP(context.Background(), email, code); err != nil {
		t.Fatalf("ConfirmOTP failed: %v", err)
	}
}

func TestResetPasswordFullRecovery(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "old-pw")
	before, err := h.engine.Login(ctx, "ada@field.io", "old-pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	code := h.issueCode(t, "ada@field.io")
	if err := h.engine.ConfirmOTP(ctx, "ada@field.io", code); err != nil {
		t.Fatalf("ConfirmOTP failed: %v", err)
	}
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := h.engine.Login(ctx, "ada@field.io", "old-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be refused, got %v", err)
	}
	after, err := h.engine.Login(ctx, "ada@field.io", "new-pw")
	if err != nil {
		t.Fatalf("expected new password to log in: %v", err)
	}

	if _, err := h.engine.ValidateToken(ctx, before.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected token issued before reset to be revoked, got %v", err)
	}
	if _, err := h.engine.ValidateToken(ctx, after.Token); err != nil {
		t.Fatalf("expected token issued after reset to validate: %v", err)
	}

	if h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected reset grant to be spent")
	}
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "third-pw", "third-pw"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected a second reset to need a new passcode, got %v", err)
	}
}

func TestResetPasswordMismatch(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	verifiedAgent(t, h, "ada@field.io", "old-pw")

	err := h.engine.ResetPassword(context.Background(), "ada@field.io", "new-pw", "new-pW")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if err.Error() != "passwords do not match" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected grant to survive a mismatch")
	}
}

func TestResetPasswordSamePassword(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()
	verifiedAgent(t, h, "ada@field.io", "old-pw")

	if err := h.engine.ResetPassword(ctx, "ada@field.io", "old-pw", "old-pw"); !errors.Is(err, ErrSamePassword) {
		t.Fatalf("expected ErrSamePassword, got %v", err)
	}
	if h.store.updateCalls != 0 {
		t.Fatal("expected no credential write for the same password")
	}
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); err != nil {
		t.Fatalf("expected grant to survive a same-password attempt: %v", err)
	}
}

func TestResetPasswordNotVerified(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "old-pw")
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified, got %v", err)
	}

	// An issued but unconfirmed passcode does not authorize a reset.
	h.issueCode(t, "ada@field.io")
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified with a pending passcode, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "ada@field.io", "old-pw"); err != nil {
		t.Fatalf("expected credential unchanged: %v", err)
	}
}

func TestResetPasswordGrantExpires(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	verifiedAgent(t, h, "ada@field.io", "old-pw")

	h.mr.FastForward(11 * time.Minute)

	err := h.engine.ResetPassword(context.Background(), "ada@field.io", "new-pw", "new-pw")
	if !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified after grant expiry, got %v", err)
	}
}

func TestResetPasswordWithoutRequiredOTP(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordReset.RequireVerifiedOTP = false
	h := newTestHarness(t, cfg, nil)
	ctx := context.Background()

	h.register(t, "ada@field.io", "+15550001", "old-pw")
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, err := h.engine.Login(ctx, "ada@field.io", "new-pw"); err != nil {
		t.Fatalf("expected new password to log in: %v", err)
	}
}

func TestResetPasswordUnknownAgent(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordReset.RequireVerifiedOTP = false
	h := newTestHarness(t, cfg, nil)

	err := h.engine.ResetPassword(context.Background(), "nobody@field.io", "new-pw", "new-pw")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestResetPasswordPolicyKeepsGrant(t *testing.T) {
	cfg := testConfig()
	cfg.Password.MinLength = 6
	h := newTestHarness(t, cfg, nil)
	ctx := context.Background()
	verifiedAgent(t, h, "ada@field.io", "old-pw")

	if err := h.engine.ResetPassword(ctx, "ada@field.io", "abc", "abc"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if !h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected grant to survive a policy refusal")
	}
}

func TestResetPasswordRequiredFields(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	ctx := context.Background()

	requireValidationField(t, h.engine.ResetPassword(ctx, "", "a", "a"), "email")
	requireValidationField(t, h.engine.ResetPassword(ctx, "ada@field.io", "", "a"), "new_password")
	requireValidationField(t, h.engine.ResetPassword(ctx, "ada@field.io", "a", ""), "confirm_password")
}

func TestResetPasswordStoreWriteFailure(t *testing.T) {
	h := newTestHarness(t, testConfig(), nil)
	verifiedAgent(t, h, "ada@field.io", "old-pw")
	h.store.updateErr = errors.New("db down")

	ctx := context.Background()
	err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected grant to be restored after a failed write")
	}

	h.store.updateErr = nil
	if err := h.engine.ResetPassword(ctx, "ada@field.io", "new-pw", "new-pw"); err != nil {
		t.Fatalf("expected retry to succeed without a new OTP, got %v", err)
	}
	if h.mr.Exists("aa:rg:ada@field.io") {
		t.Fatal("expected grant to be spent by the successful retry")
	}
	if _, err := h.engine.Login(ctx, "ada@field.io", "new-pw"); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}
}
