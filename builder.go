package authcore

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. It is single use: Build may be called once.
//
// Without a Redis client and without explicit stores, every backend is
// in-memory and process local.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions    session.Store
	revocations revocation.Store
	provider    IdentityProvider
	auditSink   AuditSink
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	built bool
}

// New returns a builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs sessions, revocations and rate counters with client unless
// a store is set explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the session table backend.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithRevocationStore overrides the revocation backend, for example with
// revocation.NewSQLStore.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.revocations = store
	return b
}

// WithIdentityProvider sets the provider used by credential login and
// password reset completion.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to zap.NewNop().
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token issuance, verification, session
// expiry, rate windows and sweeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithIDGenerator replaces uuid.NewString for session, refresh, reset and
// access token ids.
func (b *Builder) WithIDGenerator(newID func() string) *Builder {
	b.newID = newID
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records Validate latency buckets. Off by default.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	newID := b.newID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("authcore")

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewManager(jwt.Config{
		Secret:     cfg.JWT.Secret,
		KeyID:      cfg.JWT.KeyID,
		VerifyKeys: cfg.JWT.VerifyKeys,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	backends := backendNames{session: "custom", revocation: "custom", rate: "memory"}

	sessions := b.sessions
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
			backends.session = "redis"
		} else {
			sessions = session.NewMemoryStore()
			backends.session = "memory"
		}
	}

	retention := cfg.RevocationRetention()
	revocations := b.revocations
	if revocations == nil {
		if b.redis != nil {
			revocations = revocation.NewRedisStore(b.redis, cfg.Revocation.RedisPrefix, retention, now)
			backends.revocation = "redis"
		} else {
			revocations = revocation.NewMemoryStore(retention, now)
			backends.revocation = "memory"
		}
	}

	// -------- RATE LIMITER --------
	var counter rate.Counter
	var memCounter *rate.MemoryCounter
	if b.redis != nil {
		counter = rate.NewRedisCounter(b.redis)
		backends.rate = "redis"
	} else {
		memCounter = rate.NewMemoryCounter()
		counter = memCounter
	}
	limits := make(map[string]int, len(cfg.RateLimit.Limits))
	for class, limit := range cfg.RateLimit.Limits {
		limits[string(class)] = limit
	}
	limiter, err := rate.New(counter, rate.Config{
		Window: cfg.RateLimit.Window,
		Limits: limits,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	policy := password.Policy{
		MinLength:             cfg.PasswordReset.MinPasswordLength,
		RequireLetterAndDigit: cfg.PasswordReset.RequireLetterAndDigit,
		RejectCommon:          cfg.PasswordReset.RejectCommon,
	}

	e := &Engine{
		config:      cfg,
		codec:       codec,
		sessions:    sessions,
		revocations: revocations,
		limiter:     limiter,
		memCounter:  memCounter,
		provider:    b.provider,
		policy:      policy,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		now:         now,
		backends:    backends,
	}
	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		DrainTimeout: cfg.Audit.DrainTimeout,
	}, b.auditSink)

	warn := logger.Sugar().Warnw
	logoutDeps := flows.LogoutDeps{
		Codec:       codec,
		Sessions:    sessions,
		Revocations: revocations,
		Warn:        warn,
	}
	e.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			LookupSubject: b.provider.LookupSubjectByCredential,
			AuthFailed:    ErrAuthFailed,
			Now:           now,
			NewID:         newID,
			AccessTTL:     cfg.JWT.AccessTTL,
			RefreshTTL:    cfg.JWT.RefreshTTL,
			Codec:         codec,
			Sessions:      sessions,
			Warn:          warn,
		},
		Refresh: flows.RefreshDeps{
			Now:         now,
			NewID:       newID,
			AccessTTL:   cfg.JWT.AccessTTL,
			RefreshTTL:  cfg.JWT.RefreshTTL,
			Sliding:     cfg.Session.SlidingRefresh,
			Codec:       codec,
			Sessions:    sessions,
			Revocations: revocations,
			Warn:        warn,
		},
		Validate: flows.ValidateDeps{
			Codec:       codec,
			Revocations: revocations,
		},
		Logout: logoutDeps,
		PasswordReset: flows.PasswordResetDeps{
			Now:            now,
			NewID:          newID,
			ResetTTL:       cfg.PasswordReset.ResetTTL,
			Codec:          codec,
			Revocations:    revocations,
			CheckPolicy:    policy.Check,
			UpdatePassword: b.provider.UpdatePassword,
			LogoutAll: func(ctx context.Context, subject string) (int, error) {
				return flows.RunLogoutAll(ctx, subject, logoutDeps)
			},
		},
		Introspection: flows.IntrospectionDeps{
			Sessions:           sessions,
			SessionNotFoundErr: ErrSessionNotFound,
		},
	})

	b.built = true
	return e, nil
}
