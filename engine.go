package authcore

import (
	"context"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

// Engine is the token lifecycle and session-control core. Build it with
// [New] and [Builder.Build].
//
// Every method is safe for concurrent use.
type Engine struct {
	config      Config
	codec       *jwt.Manager
	sessions    session.Store
	revocations revocation.Store
	limiter     *rate.Limiter
	memCounter  *rate.MemoryCounter
	provider    IdentityProvider
	policy      password.Policy
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
	backends    backendNames
	flows       flows.Service

	sweeperMu   sync.Mutex
	sweeperStop chan struct{}
	sweeperDone chan struct{}
	closed      bool
}

type backendNames struct {
	session    string
	revocation string
	rate       string
}

// Close stops the sweeper and drains the audit dispatcher. It does not close
// a Redis client or database handed to the builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.stopSweeper(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full
// or Close ran past Audit.DrainTimeout.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType is AuditDropped split by event type, for example
// "refresh_reuse_detected" or "rate_limit_triggered".
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Config returns a deep copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// GetSessionInfo returns the session record without token material.
// Revoked sessions are returned with Revoked set until they expire.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	sess, err := flows.RunGetSessionInfo(ctx, sessionID, flows.IntrospectionDeps{
		Sessions:           e.sessions,
		SessionNotFoundErr: ErrSessionNotFound,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &SessionInfo{
		SessionID:        sess.SessionID,
		Subject:          sess.Subject,
		IssuedAt:         sess.IssuedAt,
		RefreshExpiresAt: sess.RefreshExpiresAt,
		Revoked:          sess.Revoked,
	}, nil
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	Available    bool
	RedisLatency time.Duration
}

// Health pings the session backend when it is remote.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	ok, latency := flows.RunHealth(ctx, flows.IntrospectionDeps{Sessions: e.sessions})
	return HealthStatus{Available: ok, RedisLatency: latency}
}
