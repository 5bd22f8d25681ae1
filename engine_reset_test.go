package authcore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const replacementPassword = "Fresh!Pass2024x"

func TestPasswordResetFlow(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	signUpActive(t, e, "reset-flow@example.com")
	signedIn, err := e.SignIn(ctx, "reset-flow@example.com", testPassword)
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	token, err := e.RequestPasswordReset(ctx, "reset-flow@example.com")
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token")
	}

	if err := e.CompletePasswordReset(ctx, token, replacementPassword); err != nil {
		t.Fatalf("reset completion failed: %v", err)
	}

	// The credential changed, so the old password and every live session die.
	if _, err := e.SignIn(ctx, "reset-flow@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := e.ValidateSession(ctx, signedIn.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old session revoked, got %v", err)
	}
	if _, err := e.SignIn(ctx, "reset-flow@example.com", replacementPassword); err != nil {
		t.Fatalf("sign-in with new password failed: %v", err)
	}

	// The token is spent.
	if err := e.CompletePasswordReset(ctx, token, "An0ther!Pass24"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on reuse, got %v", err)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())

	// Indistinguishable from success so the endpoint cannot be used to
	// probe which emails have accounts.
	token, err := e.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil || token != "" {
		t.Fatalf("got (%q, %v), want empty token and nil error", token, err)
	}
}

func TestPasswordResetDisabledAccount(t *testing.T) {
	e, provider, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	userID := signUpActive(t, e, "off@example.com")
	if _, err := provider.UpdateAccountStatus(ctx, userID, AccountDisabled); err != nil {
		t.Fatalf("status update failed: %v", err)
	}

	token, err := e.RequestPasswordReset(ctx, "off@example.com")
	if err != nil || token != "" {
		t.Fatalf("got (%q, %v), want empty token and nil error", token, err)
	}
}

func TestPasswordResetWeakReplacementKeepsToken(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	signUpActive(t, e, "weak-reset@example.com")
	token, err := e.RequestPasswordReset(ctx, "weak-reset@example.com")
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}

	if err := e.CompletePasswordReset(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	// A rejected replacement must not burn the token.
	if err := e.CompletePasswordReset(ctx, token, replacementPassword); err != nil {
		t.Fatalf("retry with strong password failed: %v", err)
	}
}

func TestPasswordResetRejectsReusedPassword(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	signUpActive(t, e, "again@example.com")
	token, err := e.RequestPasswordReset(ctx, "again@example.com")
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}

	if err := e.CompletePasswordReset(ctx, token, testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
	if err := e.CompletePasswordReset(ctx, token, replacementPassword); err != nil {
		t.Fatalf("reset with fresh password failed: %v", err)
	}
}

func TestPasswordResetRequestRateLimited(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	signUpActive(t, e, "throttle@example.com")

	for i := 0; i < 3; i++ {
		if _, err := e.RequestPasswordReset(ctx, "throttle@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	_, err := e.RequestPasswordReset(ctx, "throttle@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCompleteResetInvalidToken(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())

	if err := e.CompletePasswordReset(context.Background(), "bogus", replacementPassword); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid, got %v", err)
	}
}

// failSMembersHook makes SMEMBERS fail while armed. RevokeAll is the only
// SMEMBERS caller in the reset path, so arming the hook isolates a backend
// failure to the revocation step.
type failSMembersHook struct {
	armed *atomic.Bool
}

func (h failSMembersHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h failSMembersHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.armed.Load() && cmd.Name() == "smembers" {
			err := errors.New("smembers unavailable")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h failSMembersHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPasswordResetSurfacesRevocationFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	armed := &atomic.Bool{}
	rdb.AddHook(failSMembersHook{armed: armed})

	e, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserProvider(newMemoryProvider()).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		_ = rdb.Close()
		mr.Close()
	})
	ctx := context.Background()

	signUpActive(t, e, "revoke-fail@example.com")
	signedIn, err := e.SignIn(ctx, "revoke-fail@example.com", testPassword)
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	token, err := e.RequestPasswordReset(ctx, "revoke-fail@example.com")
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}

	armed.Store(true)
	err = e.CompletePasswordReset(ctx, token, replacementPassword)
	armed.Store(false)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable when revocation fails, got %v", err)
	}

	// The error left the old session alive, and the caller can see that:
	// no unqualified success was reported.
	if _, err := e.ValidateSession(ctx, signedIn.RefreshToken); err != nil {
		t.Fatalf("expected surviving session after failed revocation, got %v", err)
	}

	// The credential swap had already happened; the token is spent.
	if _, err := e.SignIn(ctx, "revoke-fail@example.com", replacementPassword); err != nil {
		t.Fatalf("sign-in with new password failed: %v", err)
	}
	if err := e.CompletePasswordReset(ctx, token, "An0ther!Pass24"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on spent token, got %v", err)
	}
}
