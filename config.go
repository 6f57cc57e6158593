package authcore

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/revocation"
)

// Config is the immutable engine configuration. The builder deep-copies it
// at Build, so mutating a Config after Build has no effect on the engine.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Revocation    RevocationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	// SweepInterval drives the background sweeper started by
	// Engine.StartSweeper when no interval is given. Zero disables it.
	SweepInterval time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	// Secret is the HS256 signing secret, at least 32 bytes.
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// KeyID names Secret in the kid header. VerifyKeys holds retired
	// secrets that are still accepted for verification.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	// SlidingRefresh extends a session's refresh expiry by RefreshTTL on
	// every rotation. When false the lifetime is absolute from login.
	SlidingRefresh bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig defines a public type used by authcore APIs.
type PasswordResetConfig struct {
	ResetTTL          time.Duration
	MinPasswordLength int
	// RequireLetterAndDigit rejects passwords made only of letters or only of digits.
	RequireLetterAndDigit bool
	// RejectCommon rejects passwords from the built-in common password list.
	RejectCommon bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets the per-window budget of each operation class.
// Classes missing from Limits are never limited.
type RateLimitConfig struct {
	Window time.Duration
	Limits map[OperationClass]int
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig defines a public type used by authcore APIs.
type RevocationConfig struct {
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit stream. DrainTimeout bounds how long
// Engine.Close delivers queued events; zero waits for all of them.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. JWT.Secret is left empty
// and must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:              time.Hour,
			MinPasswordLength:     8,
			RequireLetterAndDigit: true,
			RejectCommon:          true,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Limits: map[OperationClass]int{
				ClassRegister:      5,
				ClassLogin:         10,
				ClassRefresh:       30,
				ClassPasswordReset: 5,
			},
		},
		Revocation: RevocationConfig{
			RedisPrefix: "arv",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		SweepInterval: 5 * time.Minute,
	}
}

// RevocationRetention is how long revocation markers must outlive their
// tokens. Pass it to revocation.NewSQLStore and friends when supplying a
// store through WithRevocationStore.
func (c Config) RevocationRetention() revocation.Retention {
	return revocation.Retention{
		revocation.KindSession: max(c.JWT.AccessTTL, c.JWT.RefreshTTL) + c.JWT.Leeway,
		revocation.KindReset:   c.PasswordReset.ResetTTL + c.JWT.Leeway,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.RateLimit.Limits = maps.Clone(cfg.RateLimit.Limits)
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

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL > c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must not exceed RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if len(c.JWT.VerifyKeys) > 0 && strings.TrimSpace(c.JWT.KeyID) == "" {
		return errors.New("JWT VerifyKeys requires KeyID")
	}
	if _, clash := c.JWT.VerifyKeys[c.JWT.KeyID]; clash && c.JWT.KeyID != "" {
		return errors.New("JWT KeyID must not appear in VerifyKeys")
	}

	// Password reset
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}
	if c.PasswordReset.MinPasswordLength < 1 {
		return errors.New("PasswordReset MinPasswordLength must be >= 1")
	}

	// Rate limits
	if c.RateLimit.Window != 0 && c.RateLimit.Window < time.Second {
		return errors.New("RateLimit Window must be >= 1s")
	}
	for class, limit := range c.RateLimit.Limits {
		if strings.TrimSpace(string(class)) == "" {
			return errors.New("RateLimit Limits contains an empty class")
		}
		if limit < 0 {
			return fmt.Errorf("RateLimit limit for %q must be >= 0", class)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	if c.SweepInterval < 0 {
		return errors.New("SweepInterval must be >= 0")
	}
	return nil
}
