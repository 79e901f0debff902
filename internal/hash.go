package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken returns the lowercase hex SHA-256 digest of a refresh
// credential. Only digests are persisted; the credential itself never is.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
