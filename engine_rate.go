package authcore

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authcore/internal/rate"
)

var rateLimitedMetric = map[OperationClass]MetricID{
	ClassLogin:         MetricLoginRateLimited,
	ClassRefresh:       MetricRefreshRateLimited,
	ClassRegister:      MetricRegisterRateLimited,
	ClassPasswordReset: MetricPasswordResetRateLimited,
}

// Allow counts one request for key and returns ErrRateLimited once the
// class budget for the current window is spent. Classes without a
// configured limit always pass and are not counted.
//
// A counter backend failure returns ErrStoreUnavailable; the request is not
// allowed through.
func (e *Engine) Allow(ctx context.Context, key RateLimitKey) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ok, err := e.limiter.Allow(ctx, rate.Key{Caller: key.Caller, Class: string(key.Class)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ok {
		return nil
	}

	if id, known := rateLimitedMetric[key.Class]; known {
		e.metricInc(id)
	}
	e.emitRateLimit(ctx, key)
	return ErrRateLimited
}

// RateLimit returns the configured per-window budget of class.
func (e *Engine) RateLimit(class OperationClass) (int, bool) {
	if !e.ready() {
		return 0, false
	}
	return e.limiter.Limit(string(class))
}

// SubjectExists asks the identity provider whether email is registered. It
// is meant for registration only and should sit behind the "register" rate
// limit class.
func (e *Engine) SubjectExists(ctx context.Context, email string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	exists, err := e.provider.SubjectExists(ctx, email)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		e.emitAudit(ctx, auditEventRegistrationCheck, false, "", "", err, nil)
		return false, err
	}
	e.emitAudit(ctx, auditEventRegistrationCheck, true, "", "", nil, nil)
	return exists, nil
}
