package agentauth

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when an Engine was not built through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrValidation is matched by every [*ValidationError].
	ErrValidation = errors.New("validation failed")
	// ErrAgentNotFound is returned when no identity exists for the email.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrConflict is matched by every [*ConflictError].
	ErrConflict = errors.New("agent already exists")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAgentInactive is returned when the identity is inactive or suspended.
	ErrAgentInactive = errors.New("agent is not active")
	// ErrPasswordMismatch is returned when the new password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrSamePassword is returned when the new password verifies against the current hash.
	ErrSamePassword = errors.New("new password cannot be the same as the old password")
	// ErrPasswordPolicy is returned when a password cannot be hashed under the configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrResetNotVerified is returned by ResetPassword without a prior successful ConfirmOTP.
	ErrResetNotVerified = errors.New("password reset not verified")
	// ErrChallengeExpired is returned when no challenge is pending: it expired or was never issued.
	ErrChallengeExpired = errors.New("otp expired or not found")
	// ErrChallengeRejected is returned when the submitted code does not match the pending challenge.
	ErrChallengeRejected = errors.New("invalid otp")
	// ErrOTPDeliveryFailed is returned when the mailer could not deliver the passcode.
	ErrOTPDeliveryFailed = errors.New("otp delivery failed")
	// ErrTokenInvalid is returned for a malformed, tampered, or wrongly signed token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the credential behind a token has changed since issuance.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenIssueFailed is returned when a session token could not be signed.
	ErrTokenIssueFailed = errors.New("token issuance failed")
	// ErrStorageUnavailable is returned when the credential store fails. The cause is logged.
	ErrStorageUnavailable = errors.New("credential store unavailable")
	// ErrCacheUnavailable is returned when the challenge cache fails. The cause is logged.
	ErrCacheUnavailable = errors.New("challenge cache unavailable")
	// ErrInternal is returned for failures with no caller-facing remedy. The cause is logged.
	ErrInternal = errors.New("internal error")
)

// ValidationError reports a missing or malformed caller-supplied field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError reports that a unique field is already taken by another identity.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("agent with this %s already exists", e.Field)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
