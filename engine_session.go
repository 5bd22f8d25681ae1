package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/contractdesk/authcore/session"
)

// RefreshSession exchanges a refresh token for a fresh access token,
// rotating the refresh token when the session is close to expiry.
// Presenting a superseded token after its rotation grace destroys the
// session and returns [ErrRefreshReuse].
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sess, nextToken, rotated, err := e.sessions.Refresh(
		ctx,
		refreshToken,
		e.config.Session.RefreshTTL,
		e.config.Session.RenewWithin,
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			e.emitAudit(ctx, auditEventRefreshReuse, false, "", "", ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrTokenMalformed), errors.Is(err, session.ErrNotFound):
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	access, err := e.tokens.Issue(sess.UserID, sess.ID, time.Now())
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.ID, nil, map[string]string{
		"rotated": strconv.FormatBool(rotated),
	})

	return &SignInResult{
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: nextToken,
		CSRFToken:    e.csrf.Issue(nextToken),
	}, nil
}

// ValidateAccess verifies an access token without touching Redis.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	_ = ctx

	claims, err := e.tokens.Parse(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &AuthResult{UserID: claims.Subject, SessionID: claims.SID}, nil
}

// ValidateSession checks a refresh token against the live session store.
// Unlike [Engine.ValidateAccess] this catches revocation immediately.
func (e *Engine) ValidateSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessions.Validate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenMalformed):
			return nil, ErrRefreshInvalid
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return sess, nil
}

// SignOut revokes the session behind a refresh token. Revoking an
// already-dead session is not an error.
func (e *Engine) SignOut(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.Validate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenMalformed):
			return ErrRefreshInvalid
		case errors.Is(err, session.ErrNotFound):
			return nil
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if err := e.sessions.Revoke(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventSignOut, true, sess.UserID, sess.ID, nil, nil)
	return nil
}

// SignOutAll revokes every session of a user, for password changes and
// account compromise response.
func (e *Engine) SignOutAll(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventSignOutAll, true, userID, "", nil, nil)
	return nil
}

// ActiveSessions lists a user's live sessions for account security pages.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ids, err := e.sessions.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := e.sessions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out = append(out, sess)
	}
	return out, nil
}
