// Package cache holds short-lived encoded snapshots of directory reads.
//
// Keys are structured ([Key]) rather than free-form strings, and [KeysFor]
// is the single place that knows which keys a record contributes to. The
// cache is never authoritative: a miss or an error falls back to the
// directory.
package cache
