package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureSessionNotFound
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SessionID string
	Subject   string
	Pair      IssuedPair
	// ReuseRevoked reports whether the reuse transition managed to revoke
	// the session in both the table and the revocation store.
	ReuseRevoked bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now         func() time.Time
	NewID       func() string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Sliding     bool
	Codec       TokenCodec
	Sessions    session.Store
	Revocations revocation.Store
	Warn        func(string, ...any)
}

// RunRefresh executes refresh rotation and issuance logic without root package dependencies.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Codec.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	sessionID := claims.SessionID

	revoked, err := deps.Revocations.IsRevoked(ctx, revocation.KindSession, sessionID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SessionID: sessionID, Subject: claims.Subject}
	}
	if revoked {
		return RefreshResult{Failure: RefreshFailureSessionNotFound, SessionID: sessionID, Subject: claims.Subject}
	}

	now := deps.Now()
	req := session.RotateRequest{
		SessionID:       sessionID,
		ExpectedID:      claims.ID,
		ExpectedSubject: claims.Subject,
		NextID:          deps.NewID(),
		Now:             now,
	}
	if deps.Sliding {
		req.NextExpiresAt = now.Add(deps.RefreshTTL)
	}

	sess, err := deps.Sessions.Rotate(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshIDMismatch):
			revokedBoth := RunRevokeForReuse(ctx, sessionID, LogoutDeps{
				Sessions:    deps.Sessions,
				Revocations: deps.Revocations,
				Warn:        deps.Warn,
			})
			return RefreshResult{
				Failure:      RefreshFailureReuse,
				Err:          err,
				SessionID:    sessionID,
				Subject:      claims.Subject,
				ReuseRevoked: revokedBoth,
			}
		case errors.Is(err, session.ErrSubjectMismatch):
			// A correctly signed token naming another subject's session.
			return RefreshResult{Failure: RefreshFailureInvalid, Err: err, SessionID: sessionID, Subject: claims.Subject}
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrRevoked):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID, Subject: claims.Subject}
		case errors.Is(err, session.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err, SessionID: sessionID, Subject: claims.Subject}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SessionID: sessionID, Subject: claims.Subject}
		}
	}

	pair, err := issuePair(deps.Codec, deps.NewID, sess, now, deps.AccessTTL)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, Subject: sess.Subject}
	}
	return RefreshResult{SessionID: sessionID, Subject: sess.Subject, Pair: pair}
}
