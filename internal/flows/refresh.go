package flows

import (
	"context"
	"errors"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureSubjectNotFound
	RefreshFailureBackend
	RefreshFailureIssue
	RefreshFailureReuse
	RefreshFailureRotate
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	Pair    TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// VerifyRefresh checks signature, expiry and that the kind is refresh.
	VerifyRefresh    func(string) (Claims, error)
	LoadUser         func(context.Context, string) (UserRecord, error)
	IssuePair        func(UserRecord) (TokenPair, error)
	HashRefreshToken func(string) string
	// RotateRefreshHash is the directory compare-and-swap. On mismatch it
	// has already cleared the stored hash.
	RotateRefreshHash   func(ctx context.Context, userID, presented, next string) error
	RefreshHashMismatch error
	NotFound            error
}

// RunRefresh exchanges a refresh credential for a new pair. The presented
// credential is single-use: a second presentation finds a different stored
// hash, which burns the chain.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}

	user, err := deps.LoadUser(ctx, claims.Subject)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return RefreshResult{Failure: RefreshFailureSubjectNotFound, Err: err, UserID: claims.Subject}
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: err, UserID: claims.Subject}
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: user.UserID}
	}

	err = deps.RotateRefreshHash(
		ctx,
		user.UserID,
		deps.HashRefreshToken(refreshToken),
		deps.HashRefreshToken(pair.RefreshToken),
	)
	if err != nil {
		switch {
		case deps.RefreshHashMismatch != nil && errors.Is(err, deps.RefreshHashMismatch):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: user.UserID}
		case deps.NotFound != nil && errors.Is(err, deps.NotFound):
			return RefreshResult{Failure: RefreshFailureSubjectNotFound, Err: err, UserID: user.UserID}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, UserID: user.UserID}
		}
	}

	return RefreshResult{Failure: RefreshFailureNone, UserID: user.UserID, Pair: pair}
}
