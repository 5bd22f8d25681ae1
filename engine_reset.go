package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/contractdesk/authcore/internal/stores"
	"github.com/contractdesk/authcore/password"
	"github.com/contractdesk/authcore/ratelimit"
)

// RequestPasswordReset issues a single-use reset token for the account
// behind email. Unknown emails return an empty token and no error, so the
// response never reveals whether an account exists. Delivering the token
// is the caller's job.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.checkLimit(ctx, email, ratelimit.ActionPasswordReset); err != nil {
		return "", err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrProviderUserNotFound) {
			e.emitAudit(ctx, auditEventResetRequest, false, "", "", nil, map[string]string{
				"email":  email,
				"reason": "unknown_email",
			})
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.Status == AccountDisabled || user.Status == AccountLocked {
		e.emitAudit(ctx, auditEventResetRequest, false, user.UserID, "", nil, map[string]string{
			"reason": "account_status",
		})
		return "", nil
	}

	token, err := e.resetTokens.Issue(ctx, user.UserID, e.config.Reset.TTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventResetRequest, true, user.UserID, "", nil, nil)
	return token, nil
}

// CompletePasswordReset consumes a reset token and installs a new
// password, subject to the policy and the reuse-history check. Success
// revokes every session of the user.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	// Completion guesses are throttled by source IP; the token space is
	// far too large to enumerate, this just caps the noise.
	identifier := clientIPFromContext(ctx)
	if identifier == "" {
		identifier = "reset-complete"
	}
	if err := e.checkLimit(ctx, identifier, ratelimit.ActionPasswordReset); err != nil {
		return err
	}

	// Peek first so a rejected password does not burn the token; it is
	// consumed only once the replacement clears every check.
	userID, err := e.resetTokens.Peek(ctx, token)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFound) {
			e.emitAudit(ctx, auditEventResetFailure, false, "", "", ErrResetInvalid, map[string]string{
				"reason": "token_invalid",
			})
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	info := password.UserInfo{Email: user.Email, Name: user.Name}
	result := e.policy.Score(newPassword, info)
	if !result.IsStrong {
		feedback := result.Feedback
		if len(feedback) == 0 {
			feedback = []string{"password is too weak"}
		}
		e.emitAudit(ctx, auditEventResetFailure, false, userID, "", ErrPasswordPolicy, map[string]string{
			"reason": "password_policy",
		})
		return errors.Join(ErrPasswordPolicy, &password.PolicyViolationError{Feedback: feedback})
	}

	reused, err := e.history.IsReused(ctx, userID, newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !reused {
		// History is bounded; the current hash may have rolled out of it.
		if same, err := e.hasher.Verify(newPassword, user.PasswordHash); err == nil && same {
			reused = true
		}
	}
	if reused {
		e.emitAudit(ctx, auditEventResetFailure, false, userID, "", ErrPasswordReused, map[string]string{
			"reason": "password_reused",
		})
		return ErrPasswordReused
	}

	if _, err := e.resetTokens.Consume(ctx, token); err != nil {
		// A concurrent completion won the token.
		if errors.Is(err, stores.ErrTokenNotFound) {
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.history.Record(ctx, userID, newHash); err != nil {
		log.Print("authcore: password history record failed on reset")
	}

	// Credential changed; everything signed in with the old one dies.
	// The new password is already installed at this point, so a failed
	// revocation surfaces as an error rather than a silent success: the
	// caller must not report the old sessions gone when they are not.
	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventResetFailure, false, userID, "", ErrStoreUnavailable, map[string]string{
			"reason": "session_revocation",
		})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.limiter.Reset(ctx, user.Email, ratelimit.ActionSignIn); err != nil {
		log.Print("authcore: sign-in limiter reset failed after password reset")
	}

	e.emitAudit(ctx, auditEventResetConfirm, true, userID, "", nil, nil)
	return nil
}
