package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/revocation"
)

// ResetFailureKind classifies password reset failures for root-level mapping.
type ResetFailureKind int

const (
	ResetFailureNone ResetFailureKind = iota
	ResetFailureInvalid
	ResetFailureExpired
	ResetFailureAlreadyUsed
	ResetFailurePolicy
	ResetFailureStore
	ResetFailureUpstream
	ResetFailureSessionInvalidation
	ResetFailureIssue
)

// RequestResetResult carries the issued reset token.
type RequestResetResult struct {
	Failure   ResetFailureKind
	Err       error
	Token     string
	ResetID   string
	ExpiresAt time.Time
}

// CompleteResetResult reports the outcome of consuming a reset token.
type CompleteResetResult struct {
	Failure         ResetFailureKind
	Err             error
	Subject         string
	ResetID         string
	SessionsRevoked int
}

// PasswordResetDeps captures password reset flow dependencies.
type PasswordResetDeps struct {
	Now            func() time.Time
	NewID          func() string
	ResetTTL       time.Duration
	Codec          TokenCodec
	Revocations    revocation.Store
	CheckPolicy    func(string) error
	UpdatePassword func(ctx context.Context, subject, newPassword string) error
	LogoutAll      func(ctx context.Context, subject string) (int, error)
}

// RunRequestPasswordReset issues a reset token for whatever subject it is
// given. It never consults the identity provider, so its response cannot
// depend on whether the subject exists. An empty subject is reported as
// ResetFailureInvalid.
func RunRequestPasswordReset(_ context.Context, subject string, deps PasswordResetDeps) RequestResetResult {
	if subject == "" {
		return RequestResetResult{Failure: ResetFailureInvalid, Err: errors.New("subject is required")}
	}
	resetID := deps.NewID()
	token, expiresAt, err := deps.Codec.Issue(subject, "", resetID, jwt.KindReset, deps.ResetTTL)
	if err != nil {
		return RequestResetResult{Failure: ResetFailureIssue, Err: err}
	}
	return RequestResetResult{Token: token, ResetID: resetID, ExpiresAt: expiresAt}
}

// RunCompletePasswordReset consumes a reset token exactly once.
//
// The token is marked consumed before the identity provider is called, so
// a failure or crash during the update can never allow a second use. A
// policy violation is reported before consumption and leaves the token
// usable.
func RunCompletePasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) CompleteResetResult {
	claims, err := deps.Codec.Verify(token, jwt.KindReset)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return CompleteResetResult{Failure: ResetFailureExpired, Err: err}
		}
		return CompleteResetResult{Failure: ResetFailureInvalid, Err: err}
	}
	subject, resetID := claims.Subject, claims.ID
	result := CompleteResetResult{Subject: subject, ResetID: resetID}

	used, err := deps.Revocations.IsRevoked(ctx, revocation.KindReset, resetID)
	if err != nil {
		result.Failure, result.Err = ResetFailureStore, err
		return result
	}
	if used {
		result.Failure = ResetFailureAlreadyUsed
		return result
	}

	if deps.CheckPolicy != nil {
		if err := deps.CheckPolicy(newPassword); err != nil {
			result.Failure, result.Err = ResetFailurePolicy, err
			return result
		}
	}

	first, err := deps.Revocations.MarkRevoked(ctx, revocation.KindReset, resetID)
	if err != nil {
		result.Failure, result.Err = ResetFailureStore, err
		return result
	}
	if !first {
		result.Failure = ResetFailureAlreadyUsed
		return result
	}

	if err := deps.UpdatePassword(ctx, subject, newPassword); err != nil {
		result.Failure, result.Err = ResetFailureUpstream, err
		return result
	}

	revokedCount, err := deps.LogoutAll(ctx, subject)
	if err != nil {
		result.Failure, result.Err = ResetFailureSessionInvalidation, err
		return result
	}
	result.SessionsRevoked = revokedCount
	return result
}
