package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"go.uber.org/zap"
)

// LoginSubject opens a new session for an already authenticated subject and
// returns its first token pair.
func (e *Engine) LoginSubject(ctx context.Context, subject string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.finishLogin(ctx, e.flows.Login(ctx, subject))
}

// Login authenticates email and password against the identity provider and
// opens a session. Unknown accounts and wrong passwords both return
// ErrInvalidCredentials. Provider outages return ErrUpstreamUnavailable.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.finishLogin(ctx, e.flows.LoginWithCredentials(ctx, email, password))
}

func (e *Engine) finishLogin(ctx context.Context, res flows.LoginResult) (*TokenPair, error) {
	var err error
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Subject, res.Pair.SessionID, nil, nil)
		return toTokenPair(res.Pair), nil
	case flows.LoginFailureInvalidCredentials:
		err = ErrInvalidCredentials
	case flows.LoginFailureUpstream:
		err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Err)
	case flows.LoginFailureSessionCreate:
		err = storeErr(res.Err)
	default:
		err = fmt.Errorf("authcore: issue tokens: %w", res.Err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, res.Subject, "", err, nil)
	if res.Failure != flows.LoginFailureInvalidCredentials {
		e.logger.Warn("login failed", zap.Error(res.Err), zap.String("kind", ErrorKind(err)))
	}
	return nil, err
}

// Refresh rotates a refresh token. The presented token is retired before the
// new pair exists, so each refresh token is usable at most once.
//
// A token that was already rotated out is treated as stolen: the whole
// session is revoked and ErrTokenReused is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, res.SessionID, nil, nil)
		return toTokenPair(res.Pair), nil
	case flows.RefreshFailureInvalid:
		err = ErrTokenInvalid
	case flows.RefreshFailureExpired:
		err = ErrTokenExpired
	case flows.RefreshFailureSessionNotFound:
		err = ErrSessionNotFound
	case flows.RefreshFailureReuse:
		err = ErrTokenReused
		e.metricInc(MetricRefreshReuseDetected)
		if res.ReuseRevoked {
			e.metricInc(MetricSessionInvalidated)
		}
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.Subject, res.SessionID, err, func() map[string]string {
			return map[string]string{"session_revoked": boolString(res.ReuseRevoked)}
		})
		e.logger.Warn("refresh token reuse detected",
			zap.String("session_id", res.SessionID),
			zap.Bool("session_revoked", res.ReuseRevoked))
	case flows.RefreshFailureStore:
		err = storeErr(res.Err)
	default:
		err = fmt.Errorf("authcore: issue tokens: %w", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	if res.Failure != flows.RefreshFailureReuse {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.SessionID, err, nil)
	}
	return nil, err
}

// Validate verifies an access token and checks that its session has not been
// revoked. It never touches the session table.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	res := e.flows.Validate(ctx, accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		c := res.Claims
		out := &AuthResult{
			Subject:   c.Subject,
			SessionID: c.SessionID,
			TokenID:   c.ID,
		}
		if c.IssuedAt != nil {
			out.IssuedAt = c.IssuedAt.Time
		}
		if c.ExpiresAt != nil {
			out.ExpiresAt = c.ExpiresAt.Time
		}
		return out, nil
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricValidateRevoked)
		e.metricInc(MetricValidateFailure)
		return nil, ErrSessionRevoked
	case flows.ValidateFailureExpired:
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenExpired
	case flows.ValidateFailureStore:
		e.metricInc(MetricValidateFailure)
		return nil, storeErr(res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}
}

// Logout revokes one session. Access tokens of the session remain
// cryptographically valid until they expire, but Validate rejects them from
// this point on. Logging out an unknown or revoked session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrSessionNotFound
	}
	if err := e.flows.Logout(ctx, sessionID); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// LogoutByAccessToken revokes the session named by a valid access token.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.LogoutByAccessToken(ctx, accessToken)
	if res.Err != nil {
		if res.SessionID == "" {
			if errors.Is(res.Err, jwt.ErrExpired) {
				return ErrTokenExpired
			}
			return ErrTokenInvalid
		}
		err := storeErr(res.Err)
		e.emitAudit(ctx, auditEventLogoutSession, false, res.Subject, res.SessionID, err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.Subject, res.SessionID, nil, nil)
	return nil
}

// LogoutAll revokes every live session of subject and returns how many
// were revoked by this call.
func (e *Engine) LogoutAll(ctx context.Context, subject string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.flows.LogoutAll(ctx, subject)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, subject, "", err, nil)
		return n, err
	}
	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	e.emitAudit(ctx, auditEventLogoutAll, true, subject, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(n)}
	})
	return n, nil
}

func toTokenPair(p flows.IssuedPair) *TokenPair {
	return &TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		SessionID:        p.SessionID,
		Subject:          p.Subject,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// storeErr wraps backend failures in ErrStoreUnavailable. Engine sentinels
// pass through unchanged.
func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
