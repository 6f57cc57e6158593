package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidCredentials
	LoginFailureUpstream
	LoginFailureSessionCreate
	LoginFailureIssue
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Subject string
	Pair    IssuedPair
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	LookupSubject func(ctx context.Context, email, password string) (string, error)
	AuthFailed    error
	Now           func() time.Time
	NewID         func() string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Codec         TokenCodec
	Sessions      session.Store
	Warn          func(string, ...any)
}

// RunLoginWithCredentials resolves the subject through the identity
// provider and then opens a session for it. Every authentication failure
// collapses into LoginFailureInvalidCredentials.
func RunLoginWithCredentials(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials}
	}

	subject, err := deps.LookupSubject(ctx, email, password)
	if err != nil {
		if deps.AuthFailed != nil && errors.Is(err, deps.AuthFailed) {
			return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureUpstream, Err: err}
	}
	if subject == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials}
	}
	return RunLogin(ctx, subject, deps)
}

// RunLogin creates a new Active session for subject and issues its first
// token pair. The session record is written before any token exists.
func RunLogin(ctx context.Context, subject string, deps LoginDeps) LoginResult {
	if subject == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials}
	}

	now := deps.Now()
	sess := &session.Session{
		SessionID:        deps.NewID(),
		Subject:          subject,
		RefreshTokenID:   deps.NewID(),
		IssuedAt:         now,
		RefreshExpiresAt: now.Add(deps.RefreshTTL),
	}
	if err := deps.Sessions.Create(ctx, sess); err != nil {
		return LoginResult{Failure: LoginFailureSessionCreate, Err: err, Subject: subject}
	}

	pair, err := issuePair(deps.Codec, deps.NewID, sess, now, deps.AccessTTL)
	if err != nil {
		if _, revokeErr := deps.Sessions.Revoke(ctx, sess.SessionID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("authcore: revoke after failed issuance", "session_id", sess.SessionID, "error", revokeErr)
		}
		return LoginResult{Failure: LoginFailureIssue, Err: err, Subject: subject}
	}

	return LoginResult{Subject: subject, Pair: pair}
}

// issuePair mints an access token and a refresh token bound to the
// session's current refresh token id. The refresh token never outlives
// the session record.
func issuePair(codec TokenCodec, newID func() string, sess *session.Session, now time.Time, accessTTL time.Duration) (IssuedPair, error) {
	refreshTTL := sess.RefreshExpiresAt.Sub(now)
	if refreshTTL <= 0 {
		return IssuedPair{}, session.ErrExpired
	}

	access, accessExp, err := codec.Issue(sess.Subject, sess.SessionID, newID(), jwt.KindAccess, accessTTL)
	if err != nil {
		return IssuedPair{}, err
	}
	refresh, refreshExp, err := codec.Issue(sess.Subject, sess.SessionID, sess.RefreshTokenID, jwt.KindRefresh, refreshTTL)
	if err != nil {
		return IssuedPair{}, err
	}

	return IssuedPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sess.SessionID,
		Subject:          sess.Subject,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
