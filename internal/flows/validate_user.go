package flows

import (
	"context"
	"errors"
)

// ValidateUserFailureKind classifies password validation failures.
type ValidateUserFailureKind int

const (
	ValidateUserFailureNone ValidateUserFailureKind = iota
	ValidateUserFailureUnknownEmail
	ValidateUserFailureBadPassword
	ValidateUserFailureBackend
)

// ValidateUserResult carries the principal on success.
type ValidateUserResult struct {
	Failure   ValidateUserFailureKind
	Err       error
	Principal *Principal
}

// ValidateUserDeps captures password validation dependencies.
type ValidateUserDeps struct {
	FindUserByEmail func(context.Context, string) (UserRecord, error)
	VerifyPassword  func(context.Context, string, string) (bool, error)
	// VerifyDummy burns one hash computation when the email is unknown.
	VerifyDummy func(context.Context, string)
	NotFound    error
}

// RunValidateUser looks up email and checks password against the stored hash.
// It never mutates state.
func RunValidateUser(ctx context.Context, email, password string, deps ValidateUserDeps) ValidateUserResult {
	user, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			if deps.VerifyDummy != nil {
				deps.VerifyDummy(ctx, password)
			}
			return ValidateUserResult{Failure: ValidateUserFailureUnknownEmail, Err: err}
		}
		return ValidateUserResult{Failure: ValidateUserFailureBackend, Err: err}
	}

	ok, err := deps.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		return ValidateUserResult{Failure: ValidateUserFailureBackend, Err: err}
	}
	if !ok {
		return ValidateUserResult{
			Failure:   ValidateUserFailureBadPassword,
			Err:       errors.New("password mismatch"),
			Principal: &Principal{UserID: user.UserID},
		}
	}

	return ValidateUserResult{
		Failure: ValidateUserFailureNone,
		Principal: &Principal{
			UserID:     user.UserID,
			Email:      user.Email,
			Permission: user.Permission,
		},
	}
}
