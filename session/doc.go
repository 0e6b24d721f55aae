// Package session provides the Redis-backed refresh-session store.
//
// # Layout
//
//	<prefix>:s:<id>      hash with the session record
//	<prefix>:rh:<sha256> refresh hash -> id
//	<prefix>:jti:<jti>   access jti -> id
//	<prefix>:u:<cid>     set of active ids per credential
//
// Every key expires with the refresh token. A reaped record is indistinguishable
// from one that never existed.
//
// # Architecture boundaries
//
// This package owns persistence and the atomic consume/revoke scripts. It does
// NOT parse tokens or decide who may refresh; the tokens package does.
//
// # What this package must NOT do
//
//   - Import otpAuth, jwt or tokens.
//   - Store plaintext refresh tokens.
package session
