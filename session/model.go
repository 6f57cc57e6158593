package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("session not found")
	// ErrRevoked is returned when rotating a revoked session.
	ErrRevoked = errors.New("session revoked")
	// ErrExpired is returned when rotating a session past its refresh expiry.
	ErrExpired = errors.New("session expired")
	// ErrRefreshIDMismatch is returned when the presented refresh id is not the
	// session's current one. The record is left untouched.
	ErrRefreshIDMismatch = errors.New("refresh token id mismatch")
	// ErrSubjectMismatch is returned when RotateRequest.ExpectedSubject does
	// not own the session. The record is left untouched.
	ErrSubjectMismatch = errors.New("session subject mismatch")
	// ErrExists is returned by Create for a duplicate session id.
	ErrExists = errors.New("session already exists")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Session is one row of the session table.
//
// A revoked session keeps its record until RefreshExpiresAt so that late
// refresh attempts still resolve to a definite answer.
type Session struct {
	SessionID        string
	Subject          string
	RefreshTokenID   string
	IssuedAt         time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
}

// Expired reports whether the session's refresh lifetime has ended at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}

// RotateRequest describes one compare-and-swap on the refresh token id.
type RotateRequest struct {
	SessionID  string
	ExpectedID string
	NextID     string
	Now        time.Time
	// ExpectedSubject, when set, must own the session or nothing changes.
	ExpectedSubject string
	// NextExpiresAt extends the refresh lifetime when non-zero.
	NextExpiresAt time.Time
}

// Store is the session table.
//
// Rotate must be atomic: of N concurrent calls with the same ExpectedID at
// most one succeeds. RevokeAllForSubject returns the ids of every session the
// subject still had, whether revoked by this call or earlier.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Rotate(ctx context.Context, req RotateRequest) (*Session, error)
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAllForSubject(ctx context.Context, subject string) ([]string, error)
	SweepExpired(ctx context.Context, before time.Time) (int, error)
}

func validate(sess *Session) error {
	if sess == nil || sess.SessionID == "" || sess.Subject == "" || sess.RefreshTokenID == "" {
		return errors.New("session id, subject and refresh token id are required")
	}
	if !sess.RefreshExpiresAt.After(sess.IssuedAt) {
		return errors.New("session refresh expiry must be after issue time")
	}
	return nil
}
