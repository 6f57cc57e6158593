package authcore

import (
	"context"
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// ErrAuthFailed is returned by an IdentityProvider when the credentials do
// not match an account. The engine never distinguishes unknown accounts from
// wrong passwords.
var ErrAuthFailed = errors.New("authentication failed")

// IdentityProvider is the contract with the service that owns user records,
// password hashes and email delivery.
//
// Any error other than ErrAuthFailed is treated as the provider being
// unavailable.
type IdentityProvider interface {
	LookupSubjectByCredential(ctx context.Context, email, password string) (string, error)
	UpdatePassword(ctx context.Context, subject, newPassword string) error
	// SubjectExists is used only by registration.
	SubjectExists(ctx context.Context, email string) (bool, error)
}

// OperationClass names a rate-limited operation.
type OperationClass string

const (
	ClassRegister      OperationClass = "register"
	ClassLogin         OperationClass = "login"
	ClassRefresh       OperationClass = "refresh"
	ClassPasswordReset OperationClass = "password_reset"
)

// RateLimitKey identifies one rate-limit counter: a caller performing an
// operation class.
type RateLimitKey struct {
	Caller string
	Class  OperationClass
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	Subject          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.Validate] and stored in the request
// context by the middleware.
type AuthResult struct {
	Subject   string
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionInfo is a read-only view of a session record.
type SessionInfo struct {
	SessionID        string
	Subject          string
	IssuedAt         time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
}

// AuditEvent is the structured record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink returns a sink whose events are read from Events().
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing newline-delimited JSON to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink returns a sink logging through logger under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
