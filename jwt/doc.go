// Package jwt issues and verifies the signed access and refresh credentials.
//
// Both kinds share one signing key. The kind travels inside the signed payload
// and callers that care about it use VerifyKind, which checks the kind only after
// signature and expiry have verified.
package jwt
