package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/contractdesk/authcore/internal/stores"
	"github.com/contractdesk/authcore/ratelimit"
)

// ConfirmEmail consumes a verification token and activates the account.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	userID, err := e.verifyTokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFound) {
			e.emitAudit(ctx, auditEventVerifyFailure, false, "", "", ErrVerificationInvalid, nil)
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.Status != AccountPendingVerification {
		// Token outlived a manual status change; nothing to do.
		e.emitAudit(ctx, auditEventVerifyConfirm, true, userID, "", nil, map[string]string{
			"note": "already_active",
		})
		return nil
	}

	if _, err := e.users.UpdateAccountStatus(ctx, userID, AccountActive); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventVerifyConfirm, true, userID, "", nil, nil)
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. Unknown and already-verified emails both return an empty token
// and no error, so the response never reveals whether or how an account
// exists. Previously issued tokens stay valid until their own TTLs lapse.
func (e *Engine) ResendVerification(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Verification.Enabled {
		return "", ErrVerificationInvalid
	}

	email = normalizeEmail(email)
	if err := e.checkLimit(ctx, email, ratelimit.ActionGeneral); err != nil {
		return "", err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrProviderUserNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.Status != AccountPendingVerification {
		e.emitAudit(ctx, auditEventVerifyRequest, false, user.UserID, "", nil, map[string]string{
			"reason": "not_pending",
		})
		return "", nil
	}

	token, err := e.verifyTokens.Issue(ctx, user.UserID, e.config.Verification.TTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventVerifyRequest, true, user.UserID, "", nil, map[string]string{
		"resend": "true",
	})
	return token, nil
}
