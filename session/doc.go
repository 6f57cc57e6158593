// Package session provides the session table: one record per login holding
// the single refresh token id that may currently be exchanged.
//
// # Architecture boundaries
//
// This package owns the [Session] model and the [Store] backends (in-memory
// and Redis). Rotation is a compare-and-swap on the refresh token id and is
// atomic in every backend. The package does NOT interpret tokens or decide
// what a mismatch means; reuse handling belongs to the engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Store token material. Only opaque ids are kept.
package session
