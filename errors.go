package authcore

import "errors"

var (
	// ErrTokenInvalid is returned for tokens that are malformed, carry a bad
	// signature, or were minted for a different lifecycle.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when a token or its session is past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReused is returned when a rotated-out refresh token is presented.
	// The session has been revoked by the time the caller sees it.
	ErrTokenReused = errors.New("refresh token reused")
	// ErrSessionNotFound is returned when the session is absent or already revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned by Validate for access tokens of a revoked session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrTokenAlreadyUsed is returned when a consumed reset token is presented again.
	ErrTokenAlreadyUsed = errors.New("token already used")
	// ErrRateLimited is returned when a caller exceeded its per-window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamUnavailable is returned when the identity provider failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidCredentials is returned for every credential login failure,
	// whether the account is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned before a reset token is consumed.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrStoreUnavailable wraps session, revocation and rate counter backend failures.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrSessionInvalidationFailed is returned when a password was reset but
	// the subject's sessions could not all be revoked.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	ErrEngineNotReady = errors.New("engine not initialized")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrTokenInvalid, "token_invalid"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenReused, "token_reused"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionRevoked, "session_revoked"},
	{ErrTokenAlreadyUsed, "token_already_used"},
	{ErrRateLimited, "rate_limited"},
	{ErrUpstreamUnavailable, "upstream_unavailable"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrPasswordPolicy, "password_policy"},
	{ErrSessionInvalidationFailed, "session_invalidation_failed"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrEngineNotReady, "engine_not_ready"},
}

// ErrorKind returns a stable snake_case tag for err, suitable for API
// responses and audit records. Unknown errors map to "internal_error" and nil
// maps to "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal_error"
}
