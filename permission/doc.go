// Package permission defines the ordered permission levels and the guard that
// compares them.
//
// # Ordering
//
// Levels are ranked by an explicit [Registry], never by string comparison or
// declaration order. The default order is USER < TRIAL < MASTER < ADMIN.
// [Public] is a sentinel outside the order that always authorizes.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goUserAuth, jwt, or directory.
package permission
