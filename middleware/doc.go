// Package middleware adapts the otpAuth engine to net/http.
//
// # Middleware
//
//   - [ClientInfo] puts the caller IP and User-Agent on the request context.
//   - [RequireAccess] validates the bearer access token and stores the claims.
//   - [RequireRole] gates a route on the role claim.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token decisions
// are delegated to Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
package middleware
