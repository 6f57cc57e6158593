// Package jwt signs and verifies the three token kinds used by authcore
// (access, refresh and password reset) with HS256 and an injectable clock.
package jwt
