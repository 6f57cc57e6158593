// Package authcore is the token lifecycle and session-control core of an
// authentication service: it issues, validates, rotates and revokes
// access/refresh token pairs, runs the single-use password reset flow, and
// makes the per-caller rate-limit decision protecting these operations.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error sentinels, and value types ([TokenPair], [AuthResult],
// [MetricsSnapshot]). Flow orchestration, rate counting and audit dispatch
// live under internal/. User records, password hashes and email delivery
// belong to the [IdentityProvider].
//
// # State machine
//
// A session moves Created → Active → (Refreshed → Active)* → Revoked or
// Expired. Only the most recently issued refresh token of a session is
// accepted; presenting an earlier one revokes the session.
//
// # What this package must NOT do
//
//   - Reveal whether an account exists through login or reset responses.
//   - Roll back a committed revocation or reset consumption because the
//     caller's context was cancelled.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// Validate is the hot path: one signature check and one revocation lookup,
// no session table access.
package authcore
