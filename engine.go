package goUserAuth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goUserAuth/directory"
	"github.com/MrEthical07/goUserAuth/internal/audit"
	"github.com/MrEthical07/goUserAuth/internal/flows"
	"github.com/MrEthical07/goUserAuth/internal/users"
	"github.com/MrEthical07/goUserAuth/jwt"
	"github.com/MrEthical07/goUserAuth/password"
	"github.com/MrEthical07/goUserAuth/permission"
)

// Engine is the credential lifecycle and authorization engine. Build one
// with [Builder]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	registry     *permission.Registry
	guard        *permission.Guard
	directory    directory.Directory
	users        *users.Service
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	flows        flows.Service

	directoryBackend string
	cacheBackend     string

	closers   []func() error
	closeOnce sync.Once
}

// Close drains the audit dispatcher and releases backends the engine opened.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.audit != nil {
			e.audit.Close()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil && e.logger != nil {
				e.logger.Warn("closing backend", "error", err)
			}
		}
	})
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Permissions returns the configured levels, lowest first.
func (e *Engine) Permissions() []permission.Level {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Levels()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.OperationTimeout)
}

/*
====================================
AUTHENTICATION
====================================
*/

// ValidateUser checks email and password. It returns (nil, nil) when the
// email is unknown or the password is wrong, so callers cannot tell the two
// apart. It never mutates state.
func (e *Engine) ValidateUser(ctx context.Context, email, pw string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := e.flows.ValidateUser(ctx, email, pw)
	switch res.Failure {
	case flows.ValidateUserFailureNone:
		return &Principal{
			UserID:     res.Principal.UserID,
			Email:      res.Principal.Email,
			Permission: permission.Level(res.Principal.Permission),
		}, nil
	case flows.ValidateUserFailureUnknownEmail, flows.ValidateUserFailureBadPassword:
		e.metricInc(MetricValidateUserFailure)
		return nil, nil
	default:
		e.logger.Error("validate user", "error", res.Err)
		return nil, ErrEngineNotReady
	}
}

// Login issues a fresh credential pair for a principal already validated by
// ValidateUser. Any earlier refresh credential for the user stops working.
func (e *Engine) Login(ctx context.Context, userID string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := e.flows.Login(ctx, userID)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, "", nil)
		return &TokenPair{AccessToken: res.Pair.AccessToken, RefreshToken: res.Pair.RefreshToken}, nil
	case flows.LoginFailureUserNotFound:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, auditErrUserNotFound, nil)
		return nil, ErrInvalidCredentials
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login", "user_id", userID, "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, auditErrUnavailable, nil)
		return nil, ErrEngineNotReady
	}
}

// LoginWithPassword is ValidateUser followed by Login.
func (e *Engine) LoginWithPassword(ctx context.Context, email, pw string) (*TokenPair, error) {
	principal, err := e.ValidateUser(ctx, email, pw)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", auditErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	return e.Login(ctx, principal.UserID)
}

// Refresh exchanges a refresh credential for a new pair. Each refresh
// credential works once. Presenting a credential that is not the latest one
// revokes the user's refresh chain, so both the replayed token and its
// successor fail from then on. Every failure returns ErrUnauthorized.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil)
		return &TokenPair{AccessToken: res.Pair.AccessToken, RefreshToken: res.Pair.RefreshToken}, nil
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh token reuse detected; refresh chain revoked", "user_id", res.UserID)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, auditErrRefreshReuse, nil)
	case flows.RefreshFailureVerify:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", verifyErrorCode(res.Err), nil)
	case flows.RefreshFailureSubjectNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, auditErrUserNotFound, nil)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh", "user_id", res.UserID, "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, auditErrUnavailable, nil)
	}
	return nil, ErrUnauthorized
}

// ValidateAccess verifies an access credential. It is stateless: no
// directory or cache access.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.ValidateAccess(accessToken)
	if res.Failure != flows.ValidateAccessFailureNone {
		e.metricInc(MetricAccessRejected)
		return nil, ErrUnauthorized
	}
	return &AuthResult{
		UserID:     res.Claims.Subject,
		Email:      res.Claims.Email,
		Permission: permission.Level(res.Claims.Permission),
		ExpiresAt:  time.Unix(res.Claims.ExpiresAt, 0).UTC(),
	}, nil
}

/*
====================================
AUTHORIZATION
====================================
*/

// Authorize verifies accessToken and checks its level against required,
// which acts as a floor. A required level of permission.Public admits every
// caller without looking at the token and returns a nil result.
func (e *Engine) Authorize(ctx context.Context, required permission.Level, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if required == permission.Public {
		e.metricInc(MetricAuthorizeAllowed)
		return nil, nil
	}

	result, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if ok, _ := e.guard.Authorize(required, result.Permission); !ok {
		e.metricInc(MetricAuthorizeDenied)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, result.UserID, auditErrForbidden, func() map[string]string {
			return map[string]string{
				"required":  string(required),
				"principal": string(result.Permission),
			}
		})
		return nil, ErrForbidden
	}
	e.metricInc(MetricAuthorizeAllowed)
	return result, nil
}

// AuthorizeLevel is the bare level comparison with no credential involved.
func (e *Engine) AuthorizeLevel(required, principal permission.Level) (bool, error) {
	if e == nil || e.guard == nil {
		return false, ErrEngineNotReady
	}
	ok, err := e.guard.Authorize(required, principal)
	if err != nil {
		return false, ErrForbidden
	}
	return ok, nil
}

/*
====================================
USERS
====================================
*/

// CreateUser hashes pw and stores a new user at the lowest configured level.
func (e *Engine) CreateUser(ctx context.Context, email, pw string) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := e.flows.CreateUser(ctx, email, pw)
	if res.Failure == flows.AccountFailureNone {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventAccountCreationSuccess, true, res.User.UserID, "", nil)
		return PublicUser{
			ID:         res.User.UserID,
			Email:      res.User.Email,
			Permission: permission.Level(res.User.Permission),
		}, nil
	}

	err := e.accountError(res)
	if errors.Is(err, ErrConflict) {
		e.metricInc(MetricUserDuplicate)
	}
	e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", auditErrorCode(err), nil)
	return PublicUser{}, err
}

// UpdatePermission moves a user to level. The next lookup through any
// Engine method observes the new level.
func (e *Engine) UpdatePermission(ctx context.Context, userID string, level permission.Level) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := e.flows.UpdatePermission(ctx, userID, string(level))
	if res.Failure != flows.AccountFailureNone {
		err := e.accountError(res)
		e.emitAudit(ctx, auditEventPermissionChange, false, userID, auditErrorCode(err), nil)
		return PublicUser{}, err
	}

	e.metricInc(MetricPermissionChanged)
	e.emitAudit(ctx, auditEventPermissionChange, true, userID, "", func() map[string]string {
		return map[string]string{"level": string(level)}
	})
	return e.FindPublicUserByID(ctx, userID)
}

// RevokeRefreshToken clears the user's refresh chain. Access credentials
// already issued stay valid until they expire.
func (e *Engine) RevokeRefreshToken(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if _, err := e.users.RevokeRefreshToken(ctx, userID); err != nil {
		return e.lookupError("revoke refresh token", err)
	}
	e.metricInc(MetricRefreshRevoked)
	e.emitAudit(ctx, auditEventRefreshRevoked, true, userID, "", nil)
	return nil
}

func (e *Engine) FindUserByID(ctx context.Context, id string) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	u, err := e.users.FindByID(ctx, id)
	if err != nil {
		return User{}, e.lookupError("find user by id", err)
	}
	return u, nil
}

func (e *Engine) FindUserByEmail(ctx context.Context, email string) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return User{}, e.lookupError("find user by email", err)
	}
	return u, nil
}

func (e *Engine) FindPublicUserByID(ctx context.Context, id string) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	u, err := e.users.FindPublicByID(ctx, id)
	if err != nil {
		return PublicUser{}, e.lookupError("find public user by id", err)
	}
	return u, nil
}

func (e *Engine) FindPublicUserByEmail(ctx context.Context, email string) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	u, err := e.users.FindPublicByEmail(ctx, email)
	if err != nil {
		return PublicUser{}, e.lookupError("find public user by email", err)
	}
	return u, nil
}

// ListUsers returns every user's public projection in creation order.
func (e *Engine) ListUsers(ctx context.Context) ([]PublicUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	list, err := e.users.ListPublic(ctx)
	if err != nil {
		return nil, e.lookupError("list users", err)
	}
	return list, nil
}

func (e *Engine) lookupError(op string, err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return ErrNotFound
	}
	e.logger.Error(op, "error", err)
	return ErrEngineNotReady
}

func (e *Engine) accountError(res flows.AccountResult) error {
	switch res.Failure {
	case flows.AccountFailureInvalidInput:
		return ErrInvalidInput
	case flows.AccountFailurePasswordPolicy:
		return ErrPasswordPolicy
	case flows.AccountFailureDuplicate:
		return ErrConflict
	case flows.AccountFailureInvalidLevel:
		return ErrInvalidPermission
	case flows.AccountFailureNotFound:
		return ErrNotFound
	default:
		e.logger.Error("account operation", "error", res.Err)
		return ErrEngineNotReady
	}
}
