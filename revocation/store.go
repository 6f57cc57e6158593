package revocation

import (
	"context"
	"errors"
	"time"
)

// Kind namespaces revocation markers.
type Kind string

const (
	// KindSession markers block access tokens bound to a revoked session.
	KindSession Kind = "session"
	// KindReset markers record consumed password reset tokens.
	KindReset Kind = "reset"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("revocation store unavailable")

// Retention is how long markers of each kind must be kept after revocation.
// A kind with no positive retention is never swept.
type Retention map[Kind]time.Duration

// Store defines the revocation backend used by authcore.
//
// MarkRevoked reports true only to the call that created the marker, which
// makes it usable as a first-writer-wins consumption primitive. A lookup that
// starts after MarkRevoked returns must observe the marker.
type Store interface {
	MarkRevoked(ctx context.Context, kind Kind, id string) (bool, error)
	IsRevoked(ctx context.Context, kind Kind, id string) (bool, error)
	SweepExpired(ctx context.Context, before time.Time) (int, error)
}

func (r Retention) cutoff(kind Kind, before time.Time) (time.Time, bool) {
	ttl, ok := r[kind]
	if !ok || ttl <= 0 {
		return time.Time{}, false
	}
	return before.Add(-ttl), true
}

func validID(kind Kind, id string) error {
	if kind == "" || id == "" {
		return errors.New("revocation kind and id are required")
	}
	return nil
}
