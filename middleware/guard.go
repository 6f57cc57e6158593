package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// Validator verifies access tokens. *authcore.Engine implements it.
type Validator interface {
	Validate(ctx context.Context, accessToken string) (*authcore.AuthResult, error)
}

// Limiter makes the per-caller rate-limit decision. *authcore.Engine
// implements it.
type Limiter interface {
	Allow(ctx context.Context, key authcore.RateLimitKey) error
}

// Engine is the subset of *authcore.Engine used by Guard.
type Engine interface {
	Validator
	Limiter
}

type authResultContextKey struct{}

// Option configures the net/http middleware.
type Option func(*options)

type options struct {
	proxies TrustedProxies
}

// WithTrustedProxies makes the middleware read forwarding headers from the
// given peers. Without it the caller is always the socket peer.
func WithTrustedProxies(t TrustedProxies) Option {
	return func(o *options) { o.proxies = t }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// AuthResultFromContext returns the result stored by Guard or Optional.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

func withResult(ctx context.Context, res *authcore.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests over the class budget with 429 before looking at
// the token, then requires a valid bearer token. Any token problem yields
// the same 401 body.
func Guard(engine Engine, class authcore.OperationClass, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := requestContext(r, o.proxies.CallerID(r))

			if status, ok := allow(ctx, engine, class); !ok {
				writeError(w, status, errorBody(status))
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			res, err := engine.Validate(ctx, token)
			if err != nil {
				status := statusForValidate(err)
				writeError(w, status, errorBody(status))
				return
			}

			next.ServeHTTP(w, r.WithContext(withResult(ctx, res)))
		})
	}
}

// Optional attaches the validation result when the request carries a valid
// bearer token. It never rejects.
func Optional(engine Validator, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestContext(r, o.proxies.CallerID(r))
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok && engine != nil {
				if res, err := engine.Validate(ctx, token); err == nil {
					ctx = withResult(ctx, res)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Throttle only applies the class rate limit. Use it in front of login,
// register, refresh and password reset handlers.
func Throttle(engine Limiter, class authcore.OperationClass, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestContext(r, o.proxies.CallerID(r))
			if engine != nil {
				if status, ok := allow(ctx, engine, class); !ok {
					writeError(w, status, errorBody(status))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestContext attaches the caller identity and user agent for audit.
func requestContext(r *http.Request, caller string) context.Context {
	ctx := authcore.WithCaller(r.Context(), caller)
	if ua := r.UserAgent(); ua != "" {
		ctx = authcore.WithUserAgent(ctx, ua)
	}
	return ctx
}

func allow(ctx context.Context, engine Limiter, class authcore.OperationClass) (int, bool) {
	err := engine.Allow(ctx, authcore.RateLimitKey{Caller: authcore.CallerFromContext(ctx), Class: class})
	switch {
	case err == nil:
		return http.StatusOK, true
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, false
	default:
		return http.StatusServiceUnavailable, false
	}
}

func statusForValidate(err error) int {
	if errors.Is(err, authcore.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

func errorBody(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "unauthorized"
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
