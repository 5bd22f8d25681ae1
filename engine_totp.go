package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/contractdesk/authcore/ratelimit"
)

// backupCodeCharset omits characters that read ambiguously when printed.
const backupCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// EnrollTOTP generates an authenticator secret for the user and stores it
// unverified. The authenticator becomes a sign-in factor only after
// [Engine.ConfirmTOTPEnrollment] sees a valid code.
func (e *Engine) EnrollTOTP(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.users.EnrollTOTPSecret(ctx, userID, secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPEnrollRequested, true, userID, "", nil, nil)

	return &TOTPEnrollment{
		SecretBase32: secretBase32,
		URI:          e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// ConfirmTOTPEnrollment proves the user's authenticator holds the pending
// secret, then enables it as a sign-in factor.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkLimit(ctx, userID, ratelimit.ActionMFAVerify); err != nil {
		return err
	}

	record, err := e.users.GetTOTPSecret(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record == nil || len(record.Secret) == 0 {
		return ErrTOTPNotEnrolled
	}
	if record.Enabled {
		return ErrTOTPAlreadyEnabled
	}

	ok, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", ErrTOTPInvalid, map[string]string{
			"phase": "enrollment",
		})
		return ErrTOTPInvalid
	}

	if err := e.users.MarkTOTPVerified(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, "", nil, nil)
	return nil
}

// DisableTOTP turns the authenticator off. A valid current code is
// required so a hijacked session cannot silently weaken the account.
// Backup codes are discarded along with the authenticator.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkLimit(ctx, userID, ratelimit.ActionMFAVerify); err != nil {
		return err
	}

	record, err := e.users.GetTOTPSecret(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record == nil || !record.Enabled {
		return ErrTOTPNotEnrolled
	}

	ok, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", ErrTOTPInvalid, map[string]string{
			"phase": "disable",
		})
		return ErrTOTPInvalid
	}

	if err := e.users.DisableTOTP(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.users.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPDisabled, true, userID, "", nil, nil)
	return nil
}

// GenerateBackupCodes mints a fresh set of single-use recovery codes,
// replacing any previous set. The plaintext codes are returned exactly
// once; only their SHA-256 hashes reach the provider.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.TOTPEnabled {
		return nil, ErrTOTPNotEnrolled
	}

	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	codes := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := randomBackupCode(length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		records = append(records, BackupCodeRecord{Hash: sha256.Sum256([]byte(code))})
	}

	if err := e.users.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventBackupCodesIssued, true, userID, "", nil, map[string]string{
		"count": fmt.Sprintf("%d", count),
	})
	return codes, nil
}

func randomBackupCode(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = backupCodeCharset[int(b)%len(backupCodeCharset)]
	}
	return string(out), nil
}
