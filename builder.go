package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/contractdesk/authcore/csrf"
	"github.com/contractdesk/authcore/internal/device"
	"github.com/contractdesk/authcore/internal/stores"
	"github.com/contractdesk/authcore/password"
	"github.com/contractdesk/authcore/ratelimit"
	"github.com/contractdesk/authcore/session"
)

// Builder assembles an [Engine]. Single-use: Build consumes it.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New starts a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, rate limits,
// challenges, and password history.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the identity store.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit destination. Without one, audit events go
// to a [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Hasher)
	if err != nil {
		return nil, err
	}

	guard, err := csrf.NewGuard(cfg.CSRF.Secret)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		users:    b.userProvider,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.RotationGrace),
		limiter:  ratelimit.New(b.redis, cfg.RateLimit.Policies, cfg.RateLimit.RedisPrefix),
		hasher:   hasher,
		policy:   password.NewPolicy(cfg.Password.Requirements, nil),
		history:  password.NewHistory(b.redis, hasher, cfg.Password.HistoryPrefix, cfg.Password.HistoryLimit),
		csrf:     guard,
		totp:     newTOTPManager(cfg.TOTP),
		tokens:   newTokenManager(cfg.Token),

		resetTokens:   stores.NewTokenStore(b.redis, cfg.Reset.RedisPrefix),
		verifyTokens:  stores.NewTokenStore(b.redis, cfg.Verification.RedisPrefix),
		mfaChallenges: stores.NewMFAChallengeStore(b.redis, cfg.TOTP.ChallengePrefix),

		devices: device.NewResolver(cfg.Device.CacheSize, cfg.Device.CacheTTL),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	b.built = true

	return engine, nil
}
