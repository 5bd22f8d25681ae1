package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventSignUpSuccess       = "signup_success"
	auditEventSignUpFailure       = "signup_failure"
	auditEventSignInSuccess       = "signin_success"
	auditEventSignInFailure       = "signin_failure"
	auditEventSignInRateLimited   = "signin_rate_limited"
	auditEventMFARequired         = "mfa_required"
	auditEventMFASuccess          = "mfa_success"
	auditEventMFAFailure          = "mfa_failure"
	auditEventMFAAttemptsExceeded = "mfa_attempts_exceeded"
	auditEventBackupCodeUsed      = "backup_code_used"
	auditEventBackupCodeFailed    = "backup_code_failed"
	auditEventBackupCodesIssued   = "backup_codes_generated"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
	auditEventSignOut             = "signout"
	auditEventSignOutAll          = "signout_all"
	auditEventResetRequest        = "password_reset_request"
	auditEventResetConfirm        = "password_reset_confirm"
	auditEventResetFailure        = "password_reset_failure"
	auditEventVerifyRequest       = "email_verification_request"
	auditEventVerifyConfirm       = "email_verification_confirm"
	auditEventVerifyFailure       = "email_verification_failure"
	auditEventTOTPEnrollRequested = "totp_enroll_requested"
	auditEventTOTPEnabled         = "totp_enabled"
	auditEventTOTPDisabled        = "totp_disabled"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

const (
	auditErrInvalidCredentials = "invalid_credentials"
	auditErrRateLimited        = "rate_limited"
	auditErrAccountExists      = "duplicate"
	auditErrAccountUnverified  = "account_unverified"
	auditErrAccountDisabled    = "account_disabled"
	auditErrAccountLocked      = "account_locked"
	auditErrPasswordPolicy     = "password_policy"
	auditErrPasswordReused     = "password_reused"
	auditErrMFAInvalid         = "mfa_invalid"
	auditErrMFAAttempts        = "mfa_attempts_exceeded"
	auditErrTOTPInvalid        = "totp_invalid"
	auditErrBackupCodeInvalid  = "backup_code_invalid"
	auditErrSessionNotFound    = "session_not_found"
	auditErrRefreshInvalid     = "refresh_invalid"
	auditErrRefreshReuse       = "refresh_reuse"
	auditErrTokenInvalid       = "invalid_token"
	auditErrUnavailable        = "backend_unavailable"
	auditErrInternal           = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	userAgent := userAgentFromContext(ctx)
	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if e.devices != nil && userAgent != "" {
		event.Device = e.devices.Resolve(userAgent).String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountExists):
		return auditErrAccountExists
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReused):
		return auditErrPasswordReused
	case errors.Is(err, ErrMFAChallengeInvalid), errors.Is(err, ErrMFARequired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAAttemptsExceeded):
		return auditErrMFAAttempts
	case errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrTOTPNotEnrolled),
		errors.Is(err, ErrTOTPAlreadyEnabled):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrVerificationInvalid),
		errors.Is(err, ErrResetInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
