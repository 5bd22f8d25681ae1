package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/contractdesk/authcore/password"
	"github.com/contractdesk/authcore/ratelimit"
)

// SignUp creates an account. The password must satisfy the policy; the
// email must be unused. When verification is enabled the account starts
// in [AccountPendingVerification] and the returned token confirms it.
func (e *Engine) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrSignUpInvalid
	}

	// Sign-up abuse is keyed by source IP; unattributable requests share
	// a bucket per email.
	identifier := clientIPFromContext(ctx)
	if identifier == "" {
		identifier = email
	}
	if err := e.checkLimit(ctx, identifier, ratelimit.ActionSignUp); err != nil {
		return nil, err
	}

	info := password.UserInfo{Email: email, Name: input.Name}
	result := e.policy.Score(input.Password, info)
	if !result.IsStrong {
		feedback := result.Feedback
		if len(feedback) == 0 {
			feedback = []string{"password is too weak"}
		}
		violation := &password.PolicyViolationError{Feedback: feedback}
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", ErrPasswordPolicy, map[string]string{
			"email":  email,
			"reason": "password_policy",
		})
		return nil, errors.Join(ErrPasswordPolicy, violation)
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	status := AccountActive
	if e.config.Verification.Enabled {
		status = AccountPendingVerification
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Status:       status,
	})
	if err != nil {
		if errors.Is(err, ErrProviderDuplicateEmail) {
			e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", ErrAccountExists, map[string]string{
				"email":  email,
				"reason": "duplicate",
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Seed history so an immediate reset cannot reuse the sign-up password.
	if err := e.history.Record(ctx, user.UserID, hash); err != nil {
		log.Print("authcore: password history record failed on sign-up")
	}

	out := &SignUpResult{UserID: user.UserID}
	if e.config.Verification.Enabled {
		token, err := e.verifyTokens.Issue(ctx, user.UserID, e.config.Verification.TTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out.VerificationToken = token
		e.emitAudit(ctx, auditEventVerifyRequest, true, user.UserID, "", nil, nil)
	}

	e.emitAudit(ctx, auditEventSignUpSuccess, true, user.UserID, "", nil, map[string]string{
		"email": email,
	})

	return out, nil
}
