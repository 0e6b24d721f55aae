// Package tokens issues and rotates access/refresh pairs.
//
// Access tokens are short-lived JWTs verified without I/O. Refresh tokens are
// JWTs whose SHA-256 is bound to a server-side session; rotation consumes the
// session, so a refresh token is usable exactly once.
//
// # Architecture boundaries
//
// tokens composes jwt (signing) and session (persistence). It does not know
// about credentials, OTP challenges or rate limits; callers pass an
// [IdentityResolver] to reload claims on rotation.
package tokens
