// Package envconfig loads binary configuration from AUTHCORE_* environment
// variables and an optional .env file.
package envconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is everything cmd/authcore-server needs to start.
type Config struct {
	Env        string
	ListenAddr string
	// TrustedProxies are the peers whose forwarding headers identify the
	// caller. Empty means the socket peer is always the caller.
	TrustedProxies []string

	Log      LogConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Auth     authcore.Config

	// DemoUsers are email/password pairs registered with the in-memory
	// identity provider at startup.
	DemoUsers map[string]string
}

type LogConfig struct {
	Level  string
	Format string
}

// RedisConfig selects the Redis backend. An empty Addr keeps every store in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig enables the SQL revocation store when DSN is set.
type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Load reads ".env" from the working directory if present.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads variables from path (missing is fine), then the process
// environment, which wins.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if path != "" {
		fileVars, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for k, val := range fileVars {
			v.SetDefault(k, val)
		}
	}

	cfg := &Config{
		Env:        v.GetString("AUTHCORE_ENV"),
		ListenAddr: v.GetString("AUTHCORE_LISTEN_ADDR"),

		TrustedProxies: splitAndTrim(v.GetString("AUTHCORE_TRUSTED_PROXIES")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("AUTHCORE_LOG_LEVEL"),
		Format: v.GetString("AUTHCORE_LOG_FORMAT"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("AUTHCORE_REDIS_ADDR"),
		Password: v.GetString("AUTHCORE_REDIS_PASSWORD"),
		DB:       v.GetInt("AUTHCORE_REDIS_DB"),
	}

	cfg.Database = DatabaseConfig{
		DSN:          v.GetString("AUTHCORE_DATABASE_DSN"),
		MaxOpenConns: v.GetInt("AUTHCORE_DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("AUTHCORE_DB_MAX_IDLE_CONNS"),
	}

	auth := authcore.DefaultConfig()
	auth.JWT.Secret = []byte(v.GetString("AUTHCORE_JWT_SECRET"))
	auth.JWT.Issuer = v.GetString("AUTHCORE_JWT_ISSUER")
	auth.JWT.Audience = v.GetString("AUTHCORE_JWT_AUDIENCE")
	auth.Session.SlidingRefresh = v.GetBool("AUTHCORE_SLIDING_REFRESH")
	auth.PasswordReset.MinPasswordLength = v.GetInt("AUTHCORE_PASSWORD_MIN_LENGTH")
	auth.Audit.Enabled = v.GetBool("AUTHCORE_AUDIT_ENABLED")
	auth.Metrics.Enabled = v.GetBool("AUTHCORE_METRICS_ENABLED")
	auth.Metrics.EnableLatencyHistograms = v.GetBool("AUTHCORE_LATENCY_HISTOGRAMS")

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"AUTHCORE_ACCESS_TTL", &auth.JWT.AccessTTL},
		{"AUTHCORE_REFRESH_TTL", &auth.JWT.RefreshTTL},
		{"AUTHCORE_JWT_LEEWAY", &auth.JWT.Leeway},
		{"AUTHCORE_RESET_TTL", &auth.PasswordReset.ResetTTL},
		{"AUTHCORE_RATE_WINDOW", &auth.RateLimit.Window},
		{"AUTHCORE_SWEEP_INTERVAL", &auth.SweepInterval},
	} {
		if err := parseDuration(d.key, v.GetString(d.key), d.dst); err != nil {
			return nil, err
		}
	}

	limits, err := parseLimits(v.GetString("AUTHCORE_RATE_LIMITS"))
	if err != nil {
		return nil, err
	}
	auth.RateLimit.Limits = limits
	cfg.Auth = auth

	users, err := parsePairs(v.GetString("AUTHCORE_DEMO_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.DemoUsers = users

	return cfg, nil
}

// Validate checks the engine configuration and the server settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("AUTHCORE_LISTEN_ADDR must not be empty")
	}
	if c.Database.DSN != "" && c.Database.MaxOpenConns < 0 {
		return errors.New("AUTHCORE_DB_MAX_OPEN_CONNS must be >= 0")
	}
	return c.Auth.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AUTHCORE_ENV", EnvDevelopment)
	v.SetDefault("AUTHCORE_LISTEN_ADDR", ":8080")
	v.SetDefault("AUTHCORE_TRUSTED_PROXIES", "")
	v.SetDefault("AUTHCORE_LOG_LEVEL", "info")
	v.SetDefault("AUTHCORE_LOG_FORMAT", "json")

	v.SetDefault("AUTHCORE_REDIS_ADDR", "")
	v.SetDefault("AUTHCORE_REDIS_PASSWORD", "")
	v.SetDefault("AUTHCORE_REDIS_DB", 0)

	v.SetDefault("AUTHCORE_DATABASE_DSN", "")
	v.SetDefault("AUTHCORE_DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("AUTHCORE_DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("AUTHCORE_JWT_SECRET", "")
	v.SetDefault("AUTHCORE_JWT_ISSUER", "authcore")
	v.SetDefault("AUTHCORE_JWT_AUDIENCE", "")
	v.SetDefault("AUTHCORE_ACCESS_TTL", "1h")
	v.SetDefault("AUTHCORE_REFRESH_TTL", "168h")
	v.SetDefault("AUTHCORE_JWT_LEEWAY", "0s")
	v.SetDefault("AUTHCORE_SLIDING_REFRESH", false)
	v.SetDefault("AUTHCORE_RESET_TTL", "1h")
	v.SetDefault("AUTHCORE_PASSWORD_MIN_LENGTH", 8)

	v.SetDefault("AUTHCORE_RATE_WINDOW", "1m")
	v.SetDefault("AUTHCORE_RATE_LIMITS", "register=5,login=10,refresh=30,password_reset=5")

	v.SetDefault("AUTHCORE_AUDIT_ENABLED", false)
	v.SetDefault("AUTHCORE_METRICS_ENABLED", true)
	v.SetDefault("AUTHCORE_LATENCY_HISTOGRAMS", false)
	v.SetDefault("AUTHCORE_SWEEP_INTERVAL", "5m")

	v.SetDefault("AUTHCORE_DEMO_USERS", "")
}

// parseDuration leaves dst untouched for an empty value.
func parseDuration(key, raw string, dst *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = d
	return nil
}

// parseLimits reads "class=limit,class=limit".
func parseLimits(raw string) (map[authcore.OperationClass]int, error) {
	pairs, err := parsePairs(strings.ReplaceAll(raw, "=", ":"))
	if err != nil {
		return nil, fmt.Errorf("AUTHCORE_RATE_LIMITS: %w", err)
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	limits := make(map[authcore.OperationClass]int, len(pairs))
	for class, value := range pairs {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("AUTHCORE_RATE_LIMITS: limit for %q: %w", class, err)
		}
		limits[authcore.OperationClass(class)] = n
	}
	return limits, nil
}

// parsePairs reads "key:value,key:value". Only the first colon separates,
// so values may contain colons.
func parsePairs(raw string) (map[string]string, error) {
	parts := splitAndTrim(raw)
	if len(parts) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed entry %q", part)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
