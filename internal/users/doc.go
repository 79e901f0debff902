// Package users layers the read-through cache over the directory.
//
// Reads try the cache first and fall back to the directory, filling the
// cache on a miss. Every mutation goes through one invalidate function that
// drops all keys derived from the affected record. Cache failures never fail
// a request; they degrade to directory reads.
package users
