// Package directory stores user records: identity, password hash, permission
// level and the hash of the current refresh credential.
//
// Three backends implement [Directory]: [Memory] for tests and single-process
// deployments, [Redis] for shared state, and [SQLite] for a durable single-node
// store. All three implement the refresh rotation as one atomic step per user.
//
// # What this package must NOT do
//
//   - Hash passwords or sign credentials.
//   - Cache; read-through caching is layered on top by the engine.
package directory
