// Package password implements secret hashing and the pluggable strength policy.
//
// # Output format
//
// New digests are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts legacy bcrypt digests ($2a$, $2b$, $2y$). A successful
// match against bcrypt, or against Argon2id produced with weaker parameters,
// reports NeedsRehash so the caller can replace the stored digest.
//
// # What this package must NOT do
//
//   - Store or retrieve digests; callers own persistence.
//   - Import any other otpAuth package.
//   - Log plaintext secrets or digests.
package password
