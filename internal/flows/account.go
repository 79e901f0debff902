package flows

import (
	"context"
	"errors"
	"strings"
)

// AccountFailureKind classifies user administration failures.
type AccountFailureKind int

const (
	AccountFailureNone AccountFailureKind = iota
	AccountFailureInvalidInput
	AccountFailurePasswordPolicy
	AccountFailureDuplicate
	AccountFailureInvalidLevel
	AccountFailureNotFound
	AccountFailureBackend
)

// AccountResult carries the affected user on success.
type AccountResult struct {
	Failure AccountFailureKind
	Err     error
	User    UserRecord
}

// AccountDeps captures create and permission-update dependencies.
type AccountDeps struct {
	HashPassword   func(context.Context, string) (string, error)
	CreateUser     func(ctx context.Context, email, passwordHash, level string) (UserRecord, error)
	SetPermission  func(ctx context.Context, userID, level string) (UserRecord, error)
	DefaultLevel   func() string
	IsKnownLevel   func(string) bool
	PasswordPolicy []error
	Conflict       error
	NotFound       error
}

// RunCreateUser hashes password and stores a new user at the default level.
func RunCreateUser(ctx context.Context, email, password string, deps AccountDeps) AccountResult {
	if strings.TrimSpace(email) == "" {
		return AccountResult{Failure: AccountFailureInvalidInput, Err: errors.New("empty email")}
	}

	hash, err := deps.HashPassword(ctx, password)
	if err != nil {
		for _, policy := range deps.PasswordPolicy {
			if errors.Is(err, policy) {
				return AccountResult{Failure: AccountFailurePasswordPolicy, Err: err}
			}
		}
		return AccountResult{Failure: AccountFailureBackend, Err: err}
	}

	user, err := deps.CreateUser(ctx, email, hash, deps.DefaultLevel())
	if err != nil {
		if deps.Conflict != nil && errors.Is(err, deps.Conflict) {
			return AccountResult{Failure: AccountFailureDuplicate, Err: err}
		}
		return AccountResult{Failure: AccountFailureBackend, Err: err}
	}
	return AccountResult{Failure: AccountFailureNone, User: user}
}

// RunUpdatePermission moves userID to level. Unknown levels are rejected
// before the directory is touched.
func RunUpdatePermission(ctx context.Context, userID, level string, deps AccountDeps) AccountResult {
	if !deps.IsKnownLevel(level) {
		return AccountResult{Failure: AccountFailureInvalidLevel, Err: errors.New("unknown permission level")}
	}

	user, err := deps.SetPermission(ctx, userID, level)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return AccountResult{Failure: AccountFailureNotFound, Err: err}
		}
		return AccountResult{Failure: AccountFailureBackend, Err: err}
	}
	return AccountResult{Failure: AccountFailureNone, User: user}
}
