package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Codec       TokenCodec
	Sessions    session.Store
	Revocations revocation.Store
	Warn        func(string, ...any)
}

// LogoutByAccessResult reports which session an access-token logout targeted.
type LogoutByAccessResult struct {
	SessionID string
	Subject   string
	Err       error
}

// RunLogout revokes one session. The revocation marker is written first so
// access tokens stop validating even if the table update fails. Logging out
// an unknown or already revoked session succeeds.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if _, err := deps.Revocations.MarkRevoked(ctx, revocation.KindSession, sessionID); err != nil {
		return err
	}
	if _, err := deps.Sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// RunLogoutAll revokes every session of subject and returns how many were
// found. It stops at the first revocation store failure.
func RunLogoutAll(ctx context.Context, subject string, deps LogoutDeps) (int, error) {
	ids, err := deps.Sessions.RevokeAllForSubject(ctx, subject)
	for _, id := range ids {
		if _, markErr := deps.Revocations.MarkRevoked(ctx, revocation.KindSession, id); markErr != nil {
			return 0, markErr
		}
	}
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RunLogoutByAccessToken verifies an access token and revokes its session.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.Codec.Verify(tokenStr, jwt.KindAccess)
	if err != nil {
		return LogoutByAccessResult{Err: err}
	}
	return LogoutByAccessResult{
		SessionID: claims.SessionID,
		Subject:   claims.Subject,
		Err:       RunLogout(ctx, claims.SessionID, deps),
	}
}

// RunRevokeForReuse is the explicit transition taken when a superseded
// refresh token is presented: the whole session is revoked. It reports
// whether both the table and the revocation store were updated.
func RunRevokeForReuse(ctx context.Context, sessionID string, deps LogoutDeps) bool {
	ok := true
	if _, err := deps.Sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		ok = false
		if deps.Warn != nil {
			deps.Warn("authcore: reuse revocation of session table failed", "session_id", sessionID, "error", err)
		}
	}
	if _, err := deps.Revocations.MarkRevoked(ctx, revocation.KindSession, sessionID); err != nil {
		ok = false
		if deps.Warn != nil {
			deps.Warn("authcore: reuse revocation marker failed", "session_id", sessionID, "error", err)
		}
	}
	return ok
}
