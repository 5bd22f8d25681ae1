package authcore

import (
	"testing"
	"time"
)

func TestConfigValidateDefaultsWithSecrets(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing signing key", func(c *Config) { c.Token.SigningKey = nil }},
		{"short signing key", func(c *Config) { c.Token.SigningKey = []byte("short") }},
		{"missing csrf secret", func(c *Config) { c.CSRF.Secret = nil }},
		{"zero refresh ttl", func(c *Config) { c.Session.RefreshTTL = 0 }},
		{"renew exceeds ttl", func(c *Config) {
			c.Session.RefreshTTL = time.Minute
			c.Session.RenewWithin = time.Hour
		}},
		{"negative rotation grace", func(c *Config) { c.Session.RotationGrace = -time.Second }},
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"short min length", func(c *Config) { c.Password.Requirements.MinLength = 4 }},
		{"negative history limit", func(c *Config) { c.Password.HistoryLimit = -1 }},
		{"odd totp digits", func(c *Config) { c.TOTP.Digits = 7 }},
		{"tiny totp period", func(c *Config) { c.TOTP.Period = 5 }},
		{"wild totp skew", func(c *Config) { c.TOTP.Skew = 5 }},
		{"bogus totp algorithm", func(c *Config) { c.TOTP.Algorithm = "MD5" }},
		{"zero challenge ttl", func(c *Config) { c.TOTP.ChallengeTTL = 0 }},
		{"zero challenge attempts", func(c *Config) { c.TOTP.ChallengeMaxAttempts = 0 }},
		{"zero backup codes", func(c *Config) { c.TOTP.BackupCodeCount = 0 }},
		{"short backup codes", func(c *Config) { c.TOTP.BackupCodeLength = 4 }},
		{"audit enabled without buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
		{"verification required but disabled", func(c *Config) { c.Verification.Enabled = false }},
		{"zero reset ttl", func(c *Config) { c.Reset.TTL = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigLacksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults must not validate without secrets")
	}
}

func TestCloneConfigIsolatesMutableState(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	cfg.Token.SigningKey[0] ^= 0xff
	if clone.Token.SigningKey[0] == cfg.Token.SigningKey[0] {
		t.Fatal("signing key must be copied")
	}

	cfg.CSRF.Secret[0] ^= 0xff
	if clone.CSRF.Secret[0] == cfg.CSRF.Secret[0] {
		t.Fatal("csrf secret must be copied")
	}

	for action := range cfg.RateLimit.Policies {
		p := cfg.RateLimit.Policies[action]
		p.MaxAttempts = 9999
		cfg.RateLimit.Policies[action] = p
		if clone.RateLimit.Policies[action].MaxAttempts == 9999 {
			t.Fatal("policy table must be copied")
		}
		break
	}
}
