package flows

// UserRecord is the flow-local view of a directory record.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Permission   string
}

// Principal is an authenticated identity without credentials.
type Principal struct {
	UserID     string
	Email      string
	Permission string
}

// TokenPair is an access credential and its matching refresh credential.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Claims is the flow-local view of verified credential claims.
type Claims struct {
	Subject    string
	Email      string
	Permission string
	ExpiresAt  int64
}
