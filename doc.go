// Package goUserAuth provides a credential lifecycle and authorization engine:
// password authentication against a user directory, signed access and refresh
// credentials, single-use refresh rotation with replay detection, and
// hierarchical permission checks.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goUserAuth is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([Principal], [TokenPair], [AuthResult], [MetricsSnapshot]). Flow orchestration, the cached
// user view and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles, or cache encodings in its public API.
//   - Return backend error strings to callers; every failure maps to a sentinel in errors.go.
//   - Import any sub-package that re-imports goUserAuth (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path. It verifies a signature and never touches the directory
// or the cache. Login and Refresh perform one directory write each.
package goUserAuth
