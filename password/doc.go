// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify accepts both padded and unpadded base64 segments. NeedsUpgrade
// reports hashes produced with weaker parameters so the caller can re-hash.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goUserAuth package.
//   - Log plaintext passwords.
package password
