// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunValidateUser, RunLogin, RunRefresh, ...) accepts a
// typed dependency struct and returns a result carrying either the payload or
// a failure kind. The root package maps failure kinds to its public error
// taxonomy and emits audit events and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the directory, credential issuer and
// password hasher. They do NOT own any of these resources; ownership stays
// with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goUserAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
