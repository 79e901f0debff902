package goUserAuth

import (
	"time"

	"github.com/MrEthical07/goUserAuth/directory"
	"github.com/MrEthical07/goUserAuth/permission"
)

// Principal is an authenticated identity. It never carries credentials.
type Principal struct {
	UserID     string
	Email      string
	Permission permission.Level
}

// TokenPair is what Login and Refresh hand back to the caller.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is the verified content of an access credential.
type AuthResult struct {
	UserID     string
	Email      string
	Permission permission.Level
	ExpiresAt  time.Time
}

// User is the full directory record. Password and refresh hashes are never
// serialized to JSON.
type User = directory.User

// PublicUser is the projection returned by listing and public lookups.
type PublicUser = directory.PublicUser

// Directory is the storage contract for user records.
type Directory = directory.Directory
