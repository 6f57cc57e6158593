// Package revocation records revoked sessions and consumed reset tokens.
//
// A marker is written once and read on every validation, so every backend
// keeps IsRevoked a single point lookup. Markers are retained for the longest
// lifetime of the token kind they guard and are then swept.
package revocation
