package authcore

import "context"

type callerContextKey struct{}
type userAgentContextKey struct{}

// WithCaller attaches the caller identity (usually the client IP) to ctx.
// The engine records it on audit events.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// WithClientIP is WithCaller for callers identified by address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return WithCaller(ctx, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit metadata.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// CallerFromContext returns the caller identity set by WithCaller.
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	caller, _ := ctx.Value(callerContextKey{}).(string)
	return caller
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
