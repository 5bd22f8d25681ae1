package ratelimit

import "time"

// Action names a rate-limited operation class. Each action carries its own
// attempt budget so that, for example, MFA hammering cannot consume the
// sign-in budget and vice versa.
type Action string

const (
	// ActionSignIn covers credential verification attempts.
	ActionSignIn Action = "signin"
	// ActionSignUp covers account creation attempts.
	ActionSignUp Action = "signup"
	// ActionPasswordReset covers reset requests and completions.
	ActionPasswordReset Action = "pwreset"
	// ActionMFAVerify covers TOTP and backup-code verification attempts.
	ActionMFAVerify Action = "mfa"
	// ActionGeneral is the fallback bucket for anything without a
	// dedicated policy.
	ActionGeneral Action = "general"
)

// Policy is the attempt budget for one action: MaxAttempts within Window,
// then Block. Block must be longer than Window: the block is the
// escalation, not a second window.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Block       time.Duration
}

// PolicyTable maps actions to their policies. Lookups for unknown actions
// fall back to ActionGeneral.
type PolicyTable map[Action]Policy

// DefaultPolicies returns the baseline per-route budgets.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		ActionSignIn:        {MaxAttempts: 5, Window: 15 * time.Minute, Block: 30 * time.Minute},
		ActionSignUp:        {MaxAttempts: 3, Window: 60 * time.Minute, Block: 60 * time.Minute},
		ActionPasswordReset: {MaxAttempts: 3, Window: 60 * time.Minute, Block: 60 * time.Minute},
		ActionMFAVerify:     {MaxAttempts: 5, Window: 15 * time.Minute, Block: 30 * time.Minute},
		ActionGeneral:       {MaxAttempts: 100, Window: 15 * time.Minute, Block: 15 * time.Minute},
	}
}

func (t PolicyTable) policyFor(action Action) Policy {
	if p, ok := t[action]; ok {
		return p
	}
	if p, ok := t[ActionGeneral]; ok {
		return p
	}
	// No table entry at all: deny-nothing default, effectively unlimited.
	return Policy{MaxAttempts: 1 << 30, Window: time.Minute, Block: time.Minute}
}

// Validate rejects unusable policies.
func (t PolicyTable) Validate() error {
	for action, p := range t {
		if p.MaxAttempts <= 0 {
			return &PolicyError{Action: action, Reason: "max attempts must be > 0"}
		}
		if p.Window <= 0 {
			return &PolicyError{Action: action, Reason: "window must be > 0"}
		}
		if p.Block < p.Window {
			return &PolicyError{Action: action, Reason: "block must be >= window"}
		}
	}
	return nil
}

// PolicyError reports an invalid policy table entry.
type PolicyError struct {
	Action Action
	Reason string
}

func (e *PolicyError) Error() string {
	return "ratelimit: invalid policy for action " + string(e.Action) + ": " + e.Reason
}
