package authcore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contractdesk/authcore/internal/stores"
	"github.com/contractdesk/authcore/ratelimit"
)

// ConfirmTOTP completes an MFA challenge with an authenticator code.
// Success destroys the challenge and opens the session; failure burns one
// of the challenge's attempts.
func (e *Engine) ConfirmTOTP(ctx context.Context, challengeID, code string) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ch, err := e.lookupChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if err := e.checkLimit(ctx, ch.UserID, ratelimit.ActionMFAVerify); err != nil {
		return nil, err
	}

	record, err := e.users.GetTOTPSecret(ctx, ch.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record == nil || !record.Enabled || len(record.Secret) == 0 {
		return nil, ErrTOTPNotEnrolled
	}

	ok, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return nil, ErrTOTPInvalid
	}
	if !ok {
		return nil, e.burnChallengeAttempt(ctx, ch, ErrTOTPInvalid)
	}

	return e.completeChallenge(ctx, ch, auditEventMFASuccess, map[string]string{"method": "totp"})
}

// ConfirmBackupCode completes an MFA challenge with a single-use backup
// code. The code is consumed even though codes are not ordered; a spent
// code never verifies again.
func (e *Engine) ConfirmBackupCode(ctx context.Context, challengeID, code string) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ch, err := e.lookupChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if err := e.checkLimit(ctx, ch.UserID, ratelimit.ActionMFAVerify); err != nil {
		return nil, err
	}

	normalized := normalizeBackupCode(code)
	if normalized == "" {
		return nil, e.burnChallengeAttempt(ctx, ch, ErrBackupCodeInvalid)
	}

	hash := sha256.Sum256([]byte(normalized))
	consumed, err := e.users.ConsumeBackupCode(ctx, ch.UserID, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !consumed {
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, ch.UserID, "", ErrBackupCodeInvalid, nil)
		return nil, e.burnChallengeAttempt(ctx, ch, ErrBackupCodeInvalid)
	}

	e.emitAudit(ctx, auditEventBackupCodeUsed, true, ch.UserID, "", nil, nil)
	return e.completeChallenge(ctx, ch, auditEventMFASuccess, map[string]string{"method": "backup_code"})
}

func (e *Engine) lookupChallenge(ctx context.Context, challengeID string) (*stores.MFAChallenge, error) {
	ch, err := e.mfaChallenges.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			return nil, ErrMFAChallengeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ch, nil
}

// burnChallengeAttempt records a failed verification and returns the
// error the caller should surface. Exhausting the budget destroys the
// challenge, forcing the user back to password sign-in.
func (e *Engine) burnChallengeAttempt(ctx context.Context, ch *stores.MFAChallenge, failure error) error {
	err := e.mfaChallenges.RecordFailure(ctx, ch.ID, e.config.TOTP.ChallengeMaxAttempts)
	switch {
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, ch.UserID, "", ErrMFAAttemptsExceeded, nil)
		return ErrMFAAttemptsExceeded
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrMFAChallengeInvalid
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventMFAFailure, false, ch.UserID, "", failure, nil)
	return failure
}

func (e *Engine) completeChallenge(ctx context.Context, ch *stores.MFAChallenge, event string, metadata map[string]string) (*SignInResult, error) {
	user, err := e.users.GetUserByID(ctx, ch.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if statusErr := e.statusGate(user.Status); statusErr != nil {
		return nil, statusErr
	}

	if err := e.mfaChallenges.Delete(ctx, ch.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.limiter.Reset(ctx, ch.UserID, ratelimit.ActionMFAVerify); err != nil {
		// Stale counter self-heals when the window lapses.
		_ = err
	}

	result, err := e.finishSignIn(ctx, user)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, event, true, user.UserID, result.SessionID, nil, metadata)
	return result, nil
}

// normalizeBackupCode strips the separators users typically type along
// with a code and upcases the rest.
func normalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
