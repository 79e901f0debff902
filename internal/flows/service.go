package flows

import "context"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	ValidateUser   ValidateUserDeps
	Login          LoginDeps
	Refresh        RefreshDeps
	ValidateAccess ValidateAccessDeps
	Account        AccountDeps
}

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
	return s.deps.ValidateAccess.VerifyAccess != nil && s.deps.Refresh.RotateRefreshHash != nil
}

func (s Service) ValidateUser(ctx context.Context, email, password string) ValidateUserResult {
	return RunValidateUser(ctx, email, password, s.deps.ValidateUser)
}

func (s Service) Login(ctx context.Context, userID string) LoginResult {
	return RunLogin(ctx, userID, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) ValidateAccess(token string) ValidateAccessResult {
	return RunValidateAccess(token, s.deps.ValidateAccess)
}

func (s Service) CreateUser(ctx context.Context, email, password string) AccountResult {
	return RunCreateUser(ctx, email, password, s.deps.Account)
}

func (s Service) UpdatePermission(ctx context.Context, userID, level string) AccountResult {
	return RunUpdatePermission(ctx, userID, level, s.deps.Account)
}
