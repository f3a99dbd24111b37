package agentauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegister      = "register"
	auditEventLogin         = "login"
	auditEventOTPIssue      = "otp_issue"
	auditEventOTPVerify     = "otp_verify"
	auditEventPasswordReset = "password_reset"
	auditEventTokenValidate = "token_validate"
)

// AuditErrorCode is the stable error label carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrNotFound           AuditErrorCode = "agent_not_found"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInactive           AuditErrorCode = "agent_inactive"
	auditErrMismatch           AuditErrorCode = "password_mismatch"
	auditErrSamePassword       AuditErrorCode = "same_password"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrNotVerified        AuditErrorCode = "reset_not_verified"
	auditErrExpired            AuditErrorCode = "challenge_expired"
	auditErrRejected           AuditErrorCode = "challenge_rejected"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	agentUID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AgentUID:  agentUID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrAgentNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAgentInactive):
		return auditErrInactive
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrMismatch
	case errors.Is(err, ErrSamePassword):
		return auditErrSamePassword
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrResetNotVerified):
		return auditErrNotVerified
	case errors.Is(err, ErrChallengeExpired):
		return auditErrExpired
	case errors.Is(err, ErrChallengeRejected):
		return auditErrRejected
	case errors.Is(err, ErrOTPDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrCacheUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
