package directory

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/goUserAuth/permission"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("directory: user not found")
	// ErrConflict is returned by Create when the email is already taken.
	ErrConflict = errors.New("directory: email already registered")
	// ErrRefreshHashMismatch is returned by RotateRefreshTokenHash when the
	// presented hash does not match the stored one. The stored hash has been
	// cleared by the time this error is returned.
	ErrRefreshHashMismatch = errors.New("directory: refresh hash mismatch")
	// ErrUnavailable wraps backend failures (network, disk, driver).
	ErrUnavailable = errors.New("directory: backend unavailable")
)

// User is an immutable snapshot of a stored principal. Every Directory call
// returns a fresh copy; mutating it has no effect on the store.
type User struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	PasswordHash     string           `json:"-"`
	Permission       permission.Level `json:"permission"`
	RefreshTokenHash string           `json:"-"`
	CreatedAt        time.Time        `json:"created_at"`
}

// PublicUser is the projection of User that is safe to hand to callers.
type PublicUser struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Permission      permission.Level `json:"permission"`
	HasRefreshToken bool             `json:"has_refresh_token"`
}

// Public strips the password hash and refresh hash.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Permission:      u.Permission,
		HasRefreshToken: u.RefreshTokenHash != "",
	}
}

// Directory is the source of truth for user records.
//
// Email uniqueness is enforced here. Mutations are linearizable per record
// and RotateRefreshTokenHash is an atomic compare-and-swap.
type Directory interface {
	Create(ctx context.Context, email, passwordHash string, level permission.Level) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// ListAll returns every record in insertion order.
	ListAll(ctx context.Context) ([]User, error)
	SetRefreshTokenHash(ctx context.Context, id, hash string) (User, error)
	RevokeRefreshToken(ctx context.Context, id string) (User, error)
	SetPermission(ctx context.Context, id string, level permission.Level) (User, error)
	// RotateRefreshTokenHash replaces the stored hash with next if it equals
	// presented. Otherwise it clears the stored hash and returns
	// ErrRefreshHashMismatch together with the cleared snapshot. An empty
	// stored hash never matches.
	RotateRefreshTokenHash(ctx context.Context, id, presented, next string) (User, error)
}

// HashesEqual compares two stored hashes in constant time. Empty values
// never compare equal.
func HashesEqual(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
