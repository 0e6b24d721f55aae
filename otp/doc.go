// Package otp issues and verifies short-lived numeric one-time codes.
//
// # Storage
//
// A challenge is one Redis hash at <prefix>:c:<ulid>. The trusted challenge for
// a (credential, purpose) pair is whichever id <prefix>:l:<credential>:<purpose>
// points to; issuing a new challenge moves the pointer. Only an HMAC-SHA256 of
// credential id and code is stored.
//
// # Concurrency
//
// Verify runs as a WATCH/MULTI/EXEC optimistic transaction over the pointer and
// the challenge, retried on conflict, so two concurrent attempts never both
// succeed and never share an attempt slot.
//
// # What this package must NOT do
//
//   - Rate limit callers; the Engine does that before calling Verify.
//   - Deliver codes; the plaintext is returned from Issue exactly once.
package otp
