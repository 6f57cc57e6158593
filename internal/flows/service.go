package flows

import (
	"context"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Codec != nil && s.deps.Validate.Revocations != nil
}

func (s Service) Login(ctx context.Context, subject string) LoginResult {
	return RunLogin(ctx, subject, s.deps.Login)
}

func (s Service) LoginWithCredentials(ctx context.Context, email, password string) LoginResult {
	return RunLoginWithCredentials(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, subject string) (int, error) {
	return RunLogoutAll(ctx, subject, s.deps.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, tokenStr string) LogoutByAccessResult {
	return RunLogoutByAccessToken(ctx, tokenStr, s.deps.Logout)
}

func (s Service) RequestPasswordReset(ctx context.Context, subject string) RequestResetResult {
	return RunRequestPasswordReset(ctx, subject, s.deps.PasswordReset)
}

func (s Service) CompletePasswordReset(ctx context.Context, token, newPassword string) CompleteResetResult {
	return RunCompletePasswordReset(ctx, token, newPassword, s.deps.PasswordReset)
}
