package flows

import (
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login         LoginDeps
	Refresh       RefreshDeps
	Validate      ValidateDeps
	Logout        LogoutDeps
	PasswordReset PasswordResetDeps
	Introspection IntrospectionDeps
}

// TokenCodec is the subset of *jwt.Manager the flows use.
type TokenCodec interface {
	Issue(subject, sessionID, tokenID string, kind jwt.Kind, ttl time.Duration) (string, time.Time, error)
	Verify(token string, kind jwt.Kind) (*jwt.Claims, error)
}

// IssuedPair is an access/refresh pair minted for one session.
type IssuedPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	Subject          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
