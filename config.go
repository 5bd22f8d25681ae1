package authcore

import (
	"errors"
	"time"

	"github.com/contractdesk/authcore/password"
	"github.com/contractdesk/authcore/ratelimit"
)

// Config carries every tunable of the engine. Start from [DefaultConfig],
// adjust, and pass to [Builder.WithConfig]; the builder validates it.
type Config struct {
	Session      SessionConfig
	Token        TokenConfig
	RateLimit    RateLimitConfig
	Password     PasswordConfig
	TOTP         TOTPConfig
	CSRF         CSRFConfig
	Audit        AuditConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Device       DeviceConfig
}

// SessionConfig controls the Redis session store and refresh rotation.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
	// RenewWithin is the remaining-validity threshold under which a
	// refresh call rotates the token instead of returning it unchanged.
	RenewWithin time.Duration
	// RotationGrace is the overlap during which the superseded refresh
	// token still validates, absorbing concurrent refreshes.
	RotationGrace time.Duration
}

// TokenConfig controls the HS256 access tokens.
type TokenConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
}

// RateLimitConfig carries the per-action policy table.
type RateLimitConfig struct {
	RedisPrefix string
	Policies    ratelimit.PolicyTable
}

// PasswordConfig bundles hashing, policy, and history settings.
type PasswordConfig struct {
	Hasher         password.HasherConfig
	Requirements   password.Requirements
	HistoryPrefix  string
	HistoryLimit   int
	UpgradeOnLogin bool
}

// TOTPConfig controls authenticator enrollment, MFA challenges, and
// backup codes.
type TOTPConfig struct {
	Issuer               string
	Digits               int
	Period               int
	Algorithm            string
	Skew                 int
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int
	ChallengePrefix      string
	BackupCodeCount      int
	BackupCodeLength     int
}

// CSRFConfig holds the HMAC secret for per-session anti-forgery tokens.
type CSRFConfig struct {
	Secret []byte
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking: events beyond the buffer are
	// counted and discarded instead of stalling the caller.
	DropIfFull bool
}

// VerificationConfig controls the email verification lifecycle.
type VerificationConfig struct {
	Enabled          bool
	TTL              time.Duration
	RedisPrefix      string
	RequireForSignIn bool
}

// ResetConfig controls password reset tokens.
type ResetConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// DeviceConfig sizes the user-agent parse cache behind audit enrichment.
type DeviceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the baseline configuration. Signing and CSRF
// secrets are intentionally absent; Validate rejects a config without them.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:   "as",
			RefreshTTL:    7 * 24 * time.Hour,
			RenewWithin:   5 * time.Minute,
			RotationGrace: 10 * time.Second,
		},
		Token: TokenConfig{
			AccessTTL: 8 * time.Hour,
			Issuer:    "authcore",
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "rl",
			Policies:    ratelimit.DefaultPolicies(),
		},
		Password: PasswordConfig{
			Hasher:         password.DefaultHasherConfig(),
			Requirements:   password.DefaultRequirements(),
			HistoryPrefix:  "ph",
			HistoryLimit:   10,
			UpgradeOnLogin: true,
		},
		TOTP: TOTPConfig{
			Issuer:               "authcore",
			Digits:               6,
			Period:               30,
			Algorithm:            "SHA1",
			Skew:                 1,
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
			ChallengePrefix:      "mc",
			BackupCodeCount:      10,
			BackupCodeLength:     10,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Verification: VerificationConfig{
			Enabled:          true,
			TTL:              24 * time.Hour,
			RedisPrefix:      "ev",
			RequireForSignIn: true,
		},
		Reset: ResetConfig{
			TTL:         15 * time.Minute,
			RedisPrefix: "pr",
		},
		Device: DeviceConfig{
			CacheSize: 512,
			CacheTTL:  time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	out.CSRF.Secret = cloneBytes(cfg.CSRF.Secret)
	if cfg.RateLimit.Policies != nil {
		policies := make(ratelimit.PolicyTable, len(cfg.RateLimit.Policies))
		for action, p := range cfg.RateLimit.Policies {
			policies[action] = p
		}
		out.RateLimit.Policies = policies
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RenewWithin < 0 {
		return errors.New("Session RenewWithin must be >= 0")
	}
	if c.Session.RotationGrace < 0 {
		return errors.New("Session RotationGrace must be >= 0")
	}
	if c.Session.RenewWithin >= c.Session.RefreshTTL {
		return errors.New("Session RenewWithin must be shorter than RefreshTTL")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if len(c.Token.SigningKey) < 32 {
		return errors.New("Token SigningKey must be >= 32 bytes")
	}

	if err := c.RateLimit.Policies.Validate(); err != nil {
		return err
	}

	if c.Password.HistoryLimit < 0 {
		return errors.New("Password HistoryLimit must be >= 0")
	}
	if c.Password.Requirements.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
		// empty treated as SHA1
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.ChallengeTTL <= 0 {
		return errors.New("TOTP ChallengeTTL must be > 0")
	}
	if c.TOTP.ChallengeMaxAttempts <= 0 {
		return errors.New("TOTP ChallengeMaxAttempts must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeLength < 8 {
		return errors.New("TOTP BackupCodeLength must be >= 8")
	}

	if len(c.CSRF.Secret) < 32 {
		return errors.New("CSRF Secret must be >= 32 bytes")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Verification.Enabled && c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0 when enabled")
	}
	if c.Verification.RequireForSignIn && !c.Verification.Enabled {
		return errors.New("Verification RequireForSignIn requires Verification Enabled")
	}

	if c.Reset.TTL <= 0 {
		return errors.New("Reset TTL must be > 0")
	}

	return nil
}
