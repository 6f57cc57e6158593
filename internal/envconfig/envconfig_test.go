package envconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, time.Hour, cfg.Auth.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.JWT.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.Auth.PasswordReset.ResetTTL)
	assert.Equal(t, map[authcore.OperationClass]int{
		authcore.ClassRegister:      5,
		authcore.ClassLogin:         10,
		authcore.ClassRefresh:       30,
		authcore.ClassPasswordReset: 5,
	}, cfg.Auth.RateLimit.Limits)
	assert.True(t, cfg.Auth.Metrics.Enabled)
	assert.Nil(t, cfg.DemoUsers)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "AUTHCORE_JWT_SECRET=" + testSecret + "\n" +
		"AUTHCORE_ACCESS_TTL=10m\n" +
		"AUTHCORE_REFRESH_TTL=24h\n" +
		"AUTHCORE_REDIS_ADDR=localhost:6379\n" +
		"AUTHCORE_RATE_LIMITS=login=3, refresh=7\n" +
		"AUTHCORE_AUDIT_ENABLED=true\n" +
		"AUTHCORE_DEMO_USERS=alice@example.com:pa:ss-1,bob@example.com:hunter22\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("AUTHCORE_ACCESS_TTL", "2m")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Minute, cfg.Auth.JWT.AccessTTL, "environment wins over file")
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWT.RefreshTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Auth.Audit.Enabled)
	assert.Equal(t, map[authcore.OperationClass]int{
		authcore.ClassLogin:   3,
		authcore.ClassRefresh: 7,
	}, cfg.Auth.RateLimit.Limits)
	assert.Equal(t, map[string]string{
		"alice@example.com": "pa:ss-1",
		"bob@example.com":   "hunter22",
	}, cfg.DemoUsers)
}

func TestLoadRejectsMalformedLimits(t *testing.T) {
	t.Setenv("AUTHCORE_RATE_LIMITS", "login=ten")
	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHCORE_RATE_LIMITS")

	t.Setenv("AUTHCORE_RATE_LIMITS", "login")
	_, err = LoadFile("")
	require.Error(t, err)
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)

	for _, key := range []string{
		"AUTHCORE_ACCESS_TTL",
		"AUTHCORE_REFRESH_TTL",
		"AUTHCORE_JWT_LEEWAY",
		"AUTHCORE_RESET_TTL",
		"AUTHCORE_RATE_WINDOW",
		"AUTHCORE_SWEEP_INTERVAL",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "soon")
			cfg, err := LoadFile("")
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)
	t.Setenv("AUTHCORE_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.9 ,")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.9"}, cfg.TrustedProxies)
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "")
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
