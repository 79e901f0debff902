// Package internal contains helpers that are private to goUserAuth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - users: read-through cache layer in front of the directory
//
// # What this package must NOT do
//
//   - Export types that appear in the public goUserAuth API.
//   - Be imported by any package outside the goUserAuth module.
package internal
