package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/envconfig"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/internal/logger"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := envconfig.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(logger.Config{
		Development: cfg.Env != envconfig.EnvProduction,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == envconfig.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *envconfig.Config, logr *zap.Logger) error {
	for _, finding := range cfg.Auth.Lint() {
		logr.Warn("config lint",
			zap.String("code", finding.Code),
			zap.Any("severity", finding.Severity),
			zap.String("message", finding.Message))
	}

	provider, err := identity.NewMemoryProvider(password.DefaultConfig())
	if err != nil {
		return err
	}
	for email, pw := range cfg.DemoUsers {
		if _, err := provider.Register(ctx, email, pw); err != nil {
			return err
		}
		logr.Info("demo user registered", zap.String("email", email))
	}

	builder := authcore.New().
		WithConfig(cfg.Auth).
		WithIdentityProvider(provider).
		WithLogger(logr)

	if cfg.Auth.Audit.Enabled {
		builder = builder.WithAuditSink(authcore.NewZapSink(logr))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		builder = builder.WithRedis(rdb)
		logr.Info("redis backend enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		store := revocation.NewSQLStore(db, cfg.Auth.RevocationRetention(), nil)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		builder = builder.WithRevocationStore(store)
		logr.Info("sql revocation store enabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Auth.SweepInterval > 0 {
		if err := engine.StartSweeper(cfg.Auth.SweepInterval); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := promexport.NewCollector(engine).Register(registry); err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Engine:         engine,
		Accounts:       provider,
		Deliver:        resetDelivery(cfg, logr),
		Logger:         logr,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", cfg.ListenAddr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resetDelivery stands in for an email sender. Tokens are only logged
// outside production.
func resetDelivery(cfg *envconfig.Config, logr *zap.Logger) httpapi.ResetDelivery {
	return func(_ context.Context, email, token string, expiresAt time.Time) error {
		fields := []zap.Field{
			zap.String("email", email),
			zap.Time("expires_at", expiresAt),
		}
		if cfg.Env != envconfig.EnvProduction {
			fields = append(fields, zap.String("reset_token", token))
		}
		logr.Info("password reset issued", fields...)
		return nil
	}
}
