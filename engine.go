package authcore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/contractdesk/authcore/csrf"
	"github.com/contractdesk/authcore/internal/device"
	"github.com/contractdesk/authcore/internal/stores"
	"github.com/contractdesk/authcore/password"
	"github.com/contractdesk/authcore/ratelimit"
	"github.com/contractdesk/authcore/session"
)

// Engine orchestrates authentication flows over a [UserProvider] and a
// set of Redis-backed stores. Construct through [Builder]; safe for
// concurrent use.
type Engine struct {
	config   Config
	users    UserProvider
	sessions *session.Store
	limiter  *ratelimit.Limiter
	hasher   *password.Hasher
	policy   *password.Policy
	history  *password.History
	csrf     *csrf.Guard
	totp     *totpManager
	tokens   *tokenManager

	resetTokens   *stores.TokenStore
	verifyTokens  *stores.TokenStore
	mfaChallenges *stores.MFAChallengeStore

	devices *device.Resolver
	audit   *auditDispatcher
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// CSRFTokenFor derives the anti-forgery token bound to a refresh token.
func (e *Engine) CSRFTokenFor(refreshToken string) string {
	return e.csrf.Issue(refreshToken)
}

// ValidateCSRF checks a submitted anti-forgery token against the
// session's refresh token in constant time.
func (e *Engine) ValidateCSRF(provided, refreshToken string) bool {
	return e.csrf.Validate(provided, refreshToken)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkLimit consumes one attempt and converts denial or backend failure
// into engine errors. Backend failure fails closed.
func (e *Engine) checkLimit(ctx context.Context, identifier string, action ratelimit.Action) error {
	result, err := e.limiter.Check(ctx, identifier, action)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !result.Allowed {
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, map[string]string{
			"action":     string(action),
			"identifier": identifier,
		})
		return &RateLimitError{
			Action:     string(action),
			Limit:      result.Limit,
			RetryAfter: result.RetryAfter,
			ResetAt:    result.ResetAt,
			Blocked:    result.Blocked,
		}
	}
	return nil
}

// statusGate maps non-active account states to their sentinels. The
// unverified gate only applies when sign-in requires verification.
func (e *Engine) statusGate(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountPendingVerification:
		if e.config.Verification.RequireForSignIn {
			return ErrAccountUnverified
		}
		return nil
	case AccountDisabled:
		return ErrAccountDisabled
	case AccountLocked:
		return ErrAccountLocked
	default:
		return ErrAccountDisabled
	}
}

// finishSignIn creates the session and mints the access and CSRF tokens.
// Called only after every authentication factor has passed.
func (e *Engine) finishSignIn(ctx context.Context, user UserRecord) (*SignInResult, error) {
	meta := session.Meta{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	sess, refreshToken, err := e.sessions.Create(ctx, user.UserID, meta, e.config.Session.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, err := e.tokens.Issue(user.UserID, sess.ID, time.Now())
	if err != nil {
		return nil, err
	}

	if err := e.limiter.Reset(ctx, user.Email, ratelimit.ActionSignIn); err != nil {
		// Best-effort: a stale counter self-heals when the window lapses.
		log.Print("authcore: sign-in limiter reset failed")
	}

	return &SignInResult{
		UserID:       user.UserID,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refreshToken,
		CSRFToken:    e.csrf.Issue(refreshToken),
	}, nil
}
