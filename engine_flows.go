package goUserAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/goUserAuth/directory"
	"github.com/MrEthical07/goUserAuth/internal"
	"github.com/MrEthical07/goUserAuth/internal/flows"
	"github.com/MrEthical07/goUserAuth/jwt"
	"github.com/MrEthical07/goUserAuth/password"
	"github.com/MrEthical07/goUserAuth/permission"
)

func (e *Engine) initFlows() {
	e.flows = flows.New(flows.Deps{
		ValidateUser: flows.ValidateUserDeps{
			FindUserByEmail: func(ctx context.Context, email string) (flows.UserRecord, error) {
				u, err := e.users.FindByEmail(ctx, email)
				return toFlowUser(u), err
			},
			VerifyPassword: e.verifyPassword,
			VerifyDummy:    e.passwordHash.VerifyDummy,
			NotFound:       directory.ErrNotFound,
		},
		Login: flows.LoginDeps{
			LoadUser: func(ctx context.Context, id string) (flows.UserRecord, error) {
				u, err := e.users.Canonical(ctx, id)
				return toFlowUser(u), err
			},
			IssuePair:        e.issuePair,
			HashRefreshToken: internal.HashRefreshToken,
			StoreRefreshHash: func(ctx context.Context, id, hash string) error {
				_, err := e.users.SetRefreshTokenHash(ctx, id, hash)
				return err
			},
			NotFound: directory.ErrNotFound,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: func(token string) (flows.Claims, error) {
				return e.verifyKind(token, jwt.KindRefresh)
			},
			LoadUser: func(ctx context.Context, id string) (flows.UserRecord, error) {
				u, err := e.users.Canonical(ctx, id)
				return toFlowUser(u), err
			},
			IssuePair:        e.issuePair,
			HashRefreshToken: internal.HashRefreshToken,
			RotateRefreshHash: func(ctx context.Context, id, presented, next string) error {
				_, err := e.users.RotateRefreshTokenHash(ctx, id, presented, next)
				return err
			},
			RefreshHashMismatch: directory.ErrRefreshHashMismatch,
			NotFound:            directory.ErrNotFound,
		},
		ValidateAccess: flows.ValidateAccessDeps{
			VerifyAccess: func(token string) (flows.Claims, error) {
				return e.verifyKind(token, jwt.KindAccess)
			},
		},
		Account: flows.AccountDeps{
			HashPassword: e.passwordHash.Hash,
			CreateUser: func(ctx context.Context, email, hash, level string) (flows.UserRecord, error) {
				u, err := e.users.Create(ctx, email, hash, permission.Level(level))
				return toFlowUser(u), err
			},
			SetPermission: func(ctx context.Context, id, level string) (flows.UserRecord, error) {
				u, err := e.users.SetPermission(ctx, id, permission.Level(level))
				return toFlowUser(u), err
			},
			DefaultLevel: func() string { return string(e.registry.Lowest()) },
			IsKnownLevel: func(level string) bool {
				_, ok := e.registry.Rank(permission.Level(level))
				return ok
			},
			PasswordPolicy: []error{password.ErrTooShort, password.ErrTooLong},
			Conflict:       directory.ErrConflict,
			NotFound:       directory.ErrNotFound,
		},
	})
}

// verifyPassword treats over-long input as a mismatch rather than a backend fault.
func (e *Engine) verifyPassword(ctx context.Context, pw, encoded string) (bool, error) {
	ok, err := e.passwordHash.Verify(ctx, pw, encoded)
	if errors.Is(err, password.ErrTooLong) {
		return false, nil
	}
	return ok, err
}

func (e *Engine) issuePair(u flows.UserRecord) (flows.TokenPair, error) {
	pair, err := e.jwtManager.IssuePair(jwt.Identity{Subject: u.UserID, Email: u.Email, Permission: u.Permission})
	if err != nil {
		return flows.TokenPair{}, err
	}
	return flows.TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (e *Engine) verifyKind(token string, kind jwt.Kind) (flows.Claims, error) {
	claims, err := e.jwtManager.VerifyKind(token, kind)
	if err != nil {
		return flows.Claims{}, err
	}
	out := flows.Claims{Subject: claims.Subject, Email: claims.Email, Permission: claims.Permission}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out, nil
}

func toFlowUser(u directory.User) flows.UserRecord {
	return flows.UserRecord{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Permission:   string(u.Permission),
	}
}

// verifyErrorCode labels a credential failure for audit without exposing it to callers.
func verifyErrorCode(err error) AuditErrorCode {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return auditErrExpiredToken
	case errors.Is(err, jwt.ErrWrongKind):
		return auditErrWrongKind
	default:
		return auditErrInvalidToken
	}
}
