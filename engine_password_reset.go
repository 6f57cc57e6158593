package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"go.uber.org/zap"
)

// RequestReset issues a single-use reset token for subject. It does not
// consult the identity provider, so the result is the same whether or not
// the subject exists. Delivering the token is the caller's job.
//
// An empty subject returns ErrTokenInvalid, since no token can name it.
func (e *Engine) RequestReset(ctx context.Context, subject string) (string, error) {
	token, _, err := e.RequestResetWithExpiry(ctx, subject)
	return token, err
}

// RequestResetWithExpiry is RequestReset that also reports the token expiry.
func (e *Engine) RequestResetWithExpiry(ctx context.Context, subject string) (string, time.Time, error) {
	if !e.ready() {
		return "", time.Time{}, ErrEngineNotReady
	}

	res := e.flows.RequestPasswordReset(ctx, subject)
	if res.Failure != flows.ResetFailureNone {
		err := fmt.Errorf("authcore: issue reset token: %w", res.Err)
		if res.Failure == flows.ResetFailureInvalid {
			err = fmt.Errorf("%w: %v", ErrTokenInvalid, res.Err)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, subject, "", err, nil)
		return "", time.Time{}, err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, subject, "", nil, func() map[string]string {
		return map[string]string{"reset_id": res.ResetID}
	})
	return res.Token, res.ExpiresAt, nil
}

// CompleteReset consumes resetToken and sets the subject's password.
//
// Outcomes, in the order they are checked:
//   - ErrTokenInvalid / ErrTokenExpired: the token does not verify.
//   - ErrTokenAlreadyUsed: the token was consumed before, or a concurrent
//     call consumed it first.
//   - ErrPasswordPolicy: the password is rejected; the token stays usable.
//   - ErrUpstreamUnavailable: the provider failed; the token stays consumed.
//   - ErrSessionInvalidationFailed: the password changed but some sessions
//     could not be revoked.
func (e *Engine) CompleteReset(ctx context.Context, resetToken, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.CompletePasswordReset(ctx, resetToken, newPassword)
	if res.Failure == flows.ResetFailureNone {
		e.metricInc(MetricPasswordResetConfirmSuccess)
		e.metrics.Add(MetricSessionInvalidated, uint64(res.SessionsRevoked))
		e.emitAudit(ctx, auditEventPasswordResetConfirm, true, res.Subject, "", nil, func() map[string]string {
			return map[string]string{
				"reset_id":         res.ResetID,
				"sessions_revoked": fmt.Sprint(res.SessionsRevoked),
			}
		})
		return nil
	}

	var err error
	switch res.Failure {
	case flows.ResetFailureInvalid:
		err = ErrTokenInvalid
	case flows.ResetFailureExpired:
		err = ErrTokenExpired
	case flows.ResetFailureAlreadyUsed:
		err = ErrTokenAlreadyUsed
	case flows.ResetFailurePolicy:
		err = fmt.Errorf("%w: %v", ErrPasswordPolicy, res.Err)
	case flows.ResetFailureStore:
		err = storeErr(res.Err)
	case flows.ResetFailureUpstream:
		err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Err)
	case flows.ResetFailureSessionInvalidation:
		err = fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, res.Err)
	default:
		err = errors.Join(ErrTokenInvalid, res.Err)
	}

	e.metricInc(MetricPasswordResetConfirmFailure)
	event := auditEventPasswordResetConfirm
	if res.Failure == flows.ResetFailureAlreadyUsed {
		event = auditEventPasswordResetReplay
		e.metricInc(MetricPasswordResetReplay)
	}
	e.emitAudit(ctx, event, false, res.Subject, "", err, func() map[string]string {
		if res.ResetID == "" {
			return nil
		}
		return map[string]string{"reset_id": res.ResetID}
	})

	switch res.Failure {
	case flows.ResetFailureUpstream, flows.ResetFailureSessionInvalidation, flows.ResetFailureStore:
		e.logger.Warn("password reset failed after verification",
			zap.String("kind", ErrorKind(err)),
			zap.String("reset_id", res.ResetID),
			zap.Error(res.Err))
	}
	return err
}

// CheckPasswordPolicy applies the reset password policy to pw. Registration
// handlers use it so new accounts follow the same rules as resets.
func (e *Engine) CheckPasswordPolicy(pw string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.policy.Check(pw); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return nil
}
