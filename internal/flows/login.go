package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login (token issuance) failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUserNotFound
	LoginFailureBackend
	LoginFailureIssue
	LoginFailurePersist
)

// LoginResult carries the issued pair on success.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Pair    TokenPair
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// LoadUser reads the canonical record, bypassing any cache.
	LoadUser         func(context.Context, string) (UserRecord, error)
	IssuePair        func(UserRecord) (TokenPair, error)
	HashRefreshToken func(string) string
	StoreRefreshHash func(context.Context, string, string) error
	NotFound         error
}

// RunLogin issues a fresh pair for userID and records the refresh hash,
// replacing any previous one.
func RunLogin(ctx context.Context, userID string, deps LoginDeps) LoginResult {
	user, err := deps.LoadUser(ctx, userID)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return LoginResult{Failure: LoginFailureUserNotFound, Err: err, UserID: userID}
		}
		return LoginResult{Failure: LoginFailureBackend, Err: err, UserID: userID}
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID}
	}

	if err := deps.StoreRefreshHash(ctx, user.UserID, deps.HashRefreshToken(pair.RefreshToken)); err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return LoginResult{Failure: LoginFailureUserNotFound, Err: err, UserID: user.UserID}
		}
		return LoginResult{Failure: LoginFailurePersist, Err: err, UserID: user.UserID}
	}

	return LoginResult{Failure: LoginFailureNone, UserID: user.UserID, Pair: pair}
}
