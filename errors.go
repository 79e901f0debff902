package goUserAuth

import "errors"

var (
	// ErrInvalidCredentials is returned by the password login path. It never says which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for every refresh or access credential failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated principal lacks the required level.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned by user lookups on non-security paths.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by CreateUser when the email is already registered.
	ErrConflict = errors.New("conflict")
	// ErrPasswordPolicy is returned by CreateUser when the password violates length limits.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidPermission is returned by UpdatePermission for a level outside the configured order.
	ErrInvalidPermission = errors.New("invalid permission level")
	// ErrInvalidInput is returned when a required argument is empty.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned when a backend is unavailable or the engine is not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
