// Package middleware adapts Engine checks to net/http.
//
//   - [Guard] admits any valid access credential.
//   - [Require] additionally enforces a minimum permission level.
//
// Both read the Authorization header, delegate every decision to the
// Engine, and store the verified [goUserAuth.AuthResult] in the request
// context for [AuthResultFromContext]. Rejections carry no detail beyond
// the status code.
package middleware
