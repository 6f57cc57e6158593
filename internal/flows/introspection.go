package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/session"
)

// Pinger is implemented by backends that can report round-trip latency.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// IntrospectionDeps captures read-only session lookup dependencies.
type IntrospectionDeps struct {
	Sessions           session.Store
	SessionNotFoundErr error
}

// RunGetSessionInfo returns a copy of the session record.
func RunGetSessionInfo(ctx context.Context, sessionID string, deps IntrospectionDeps) (*session.Session, error) {
	if sessionID == "" {
		return nil, deps.SessionNotFoundErr
	}
	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, deps.SessionNotFoundErr
		}
		return nil, err
	}
	return sess, nil
}

// RunHealth pings the session backend when it supports it. Backends without
// a remote dependency are always healthy.
func RunHealth(ctx context.Context, deps IntrospectionDeps) (bool, time.Duration) {
	pinger, ok := deps.Sessions.(Pinger)
	if !ok {
		return true, 0
	}
	latency, err := pinger.Ping(ctx)
	return err == nil, latency
}
