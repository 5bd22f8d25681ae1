package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/contractdesk/authcore/ratelimit"
)

// SignIn verifies credentials and either opens a session or, for accounts
// with an enrolled authenticator, returns an MFA challenge. The rate-limit
// gate runs before credential verification, so a locked-out identifier is
// refused even with the correct password.
func (e *Engine) SignIn(ctx context.Context, email, pass string) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.checkLimit(ctx, email, ratelimit.ActionSignIn); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.emitAudit(ctx, auditEventSignInRateLimited, false, "", "", err, map[string]string{
				"email": email,
			})
		}
		return nil, err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrProviderUserNotFound) {
			e.emitAudit(ctx, auditEventSignInFailure, false, "", "", ErrInvalidCredentials, map[string]string{
				"email":  email,
				"reason": "user_not_found",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventSignInFailure, false, user.UserID, "", ErrInvalidCredentials, map[string]string{
			"email":  email,
			"reason": "password_mismatch",
		})
		return nil, ErrInvalidCredentials
	}

	if statusErr := e.statusGate(user.Status); statusErr != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, user.UserID, "", statusErr, map[string]string{
			"email":  email,
			"reason": "account_status",
		})
		return nil, statusErr
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, user, pass)
	}
	pass = ""

	if user.TOTPEnabled {
		challengeID, err := e.mfaChallenges.Create(ctx, user.UserID, e.config.TOTP.ChallengeTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.emitAudit(ctx, auditEventMFARequired, true, user.UserID, "", nil, map[string]string{
			"challenge_id": challengeID,
		})
		return &SignInResult{
			UserID:         user.UserID,
			MFARequired:    true,
			MFAChallengeID: challengeID,
		}, nil
	}

	result, err := e.finishSignIn(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, user.UserID, "", err, map[string]string{
			"email":  email,
			"reason": "session_create_failed",
		})
		return nil, err
	}

	e.emitAudit(ctx, auditEventSignInSuccess, true, user.UserID, result.SessionID, nil, map[string]string{
		"email": email,
	})

	return result, nil
}

// upgradeHash transparently re-hashes the password when the stored hash
// predates a parameter strengthening. Best-effort.
func (e *Engine) upgradeHash(ctx context.Context, user UserRecord, pass string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}
