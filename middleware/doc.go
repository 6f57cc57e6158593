// Package middleware adapts authcore.Engine to net/http and gin.
//
// # Handlers
//
//   - [Guard] rate-limits the caller, then requires a valid access token.
//   - [Optional] attaches the validated result when a token is present.
//   - [Throttle] rate-limits unauthenticated endpoints such as login.
//   - [GinGuard], [GinOptional] and [GinThrottle] do the same for gin.
//
// The caller is the socket peer. Forwarding headers are read only when the
// peer is listed in [TrustedProxies] (net/http, via [WithTrustedProxies]) or
// in the gin engine's trusted proxies (gin, via c.ClientIP).
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the engine).
//   - Tell clients why a token was rejected. Every rejection is the same 401.
package middleware
