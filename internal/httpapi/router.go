// Package httpapi exposes the engine over HTTP for cmd/authcore-server.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logger"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Accounts is the registration side of the identity service. The engine
// itself only needs authcore.IdentityProvider.
type Accounts interface {
	Register(ctx context.Context, email, password string) (string, error)
	SubjectByEmail(ctx context.Context, email string) (string, error)
}

// ResetDelivery hands a freshly issued reset token to whatever sends it to
// the user. Errors are logged and never reach the client.
type ResetDelivery func(ctx context.Context, email, token string, expiresAt time.Time) error

type Deps struct {
	Engine   *authcore.Engine
	Accounts Accounts
	Deliver  ResetDelivery
	Logger   *zap.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers name the caller. Empty trusts nobody.
	TrustedProxies []string
	// ResetQueueSize bounds pending reset deliveries. Zero means 256.
	ResetQueueSize int
}

// Router is the gin engine plus the background reset delivery worker.
type Router struct {
	*gin.Engine
	resets *resetQueue
}

// Close waits for queued reset deliveries. Requests arriving afterwards
// still get 202 but nothing is delivered.
func (r *Router) Close() {
	r.resets.close()
}

type handler struct {
	engine   *authcore.Engine
	accounts Accounts
	resets   *resetQueue
	log      *zap.Logger
}

// NewRouter builds the gin engine with every route mounted and starts the
// reset delivery worker. Call Close on shutdown.
func NewRouter(deps Deps) (*Router, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	h := &handler{
		engine:   deps.Engine,
		accounts: deps.Accounts,
		resets:   newResetQueue(deps.Engine, deps.Accounts, deps.Deliver, log, deps.ResetQueueSize),
		log:      log,
	}

	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))

	r.GET("/healthz", h.health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	auth := r.Group("/v1/auth")
	auth.POST("/register", middleware.GinThrottle(h.engine, authcore.ClassRegister), h.register)
	auth.POST("/login", middleware.GinThrottle(h.engine, authcore.ClassLogin), h.login)
	auth.POST("/refresh", middleware.GinThrottle(h.engine, authcore.ClassRefresh), h.refresh)
	auth.POST("/logout", middleware.GinGuard(h.engine, ""), h.logout)
	auth.POST("/logout-all", middleware.GinGuard(h.engine, ""), h.logoutAll)
	auth.POST("/password-reset/request", middleware.GinThrottle(h.engine, authcore.ClassPasswordReset), h.requestReset)
	auth.POST("/password-reset/complete", middleware.GinThrottle(h.engine, authcore.ClassPasswordReset), h.completeReset)

	v1 := r.Group("/v1", middleware.GinGuard(h.engine, ""))
	v1.GET("/me", h.me)

	return &Router{Engine: r, resets: h.resets}, nil
}
