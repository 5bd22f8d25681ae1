package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for any credential failure during
	// sign-in: unknown email, wrong password. Callers must not distinguish
	// the two to the user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by SignUp for duplicate emails.
	ErrAccountExists = errors.New("account already exists")
	// ErrSignUpInvalid rejects structurally bad sign-up input (empty or
	// malformed email).
	ErrSignUpInvalid = errors.New("invalid sign-up input")
	// ErrAccountUnverified rejects sign-in before email verification.
	ErrAccountUnverified = errors.New("email not verified")
	// ErrAccountDisabled rejects any operation on a disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked rejects any operation on a locked account.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is the sentinel wrapped by [RateLimitError].
	ErrRateLimited = errors.New("rate limited")

	// ErrPasswordPolicy wraps policy violations; the joined
	// [password.PolicyViolationError] carries the feedback list.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReused rejects a new password matching recent history.
	ErrPasswordReused = errors.New("password was used recently")

	// ErrMFARequired signals that sign-in produced a challenge instead of
	// a session.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAChallengeInvalid covers unknown and expired MFA challenges.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrMFAAttemptsExceeded is returned when a challenge's attempt budget
	// is spent; the user must sign in with their password again.
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")
	// ErrTOTPInvalid is returned for a wrong or malformed TOTP code.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPNotEnrolled is returned when an operation needs an enrolled
	// authenticator and none exists.
	ErrTOTPNotEnrolled = errors.New("totp not enrolled")
	// ErrTOTPAlreadyEnabled rejects re-enrollment of an active authenticator.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrBackupCodeInvalid is returned for a wrong or already-spent backup code.
	ErrBackupCodeInvalid = errors.New("invalid backup code")

	// ErrSessionNotFound covers missing and expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshInvalid is returned for refresh tokens that do not decode
	// or do not match a live session.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a superseded refresh token is
	// presented after its rotation grace; the session is destroyed.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrTokenInvalid is returned for access tokens that fail verification.
	ErrTokenInvalid = errors.New("invalid access token")

	// ErrVerificationInvalid covers unknown, expired, and consumed email
	// verification tokens.
	ErrVerificationInvalid = errors.New("verification token invalid")
	// ErrResetInvalid covers unknown, expired, and consumed password reset
	// tokens.
	ErrResetInvalid = errors.New("password reset token invalid")

	// ErrStoreUnavailable wraps backend failures on security-relevant
	// paths. Those paths fail closed.
	ErrStoreUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned from operations on a nil or
	// incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError is returned when an operation is denied by the rate
// limiter. It unwraps to [ErrRateLimited] and carries the data the HTTP
// layer needs for Retry-After and X-RateLimit-* headers.
type RateLimitError struct {
	Action     string
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
	Blocked    bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
