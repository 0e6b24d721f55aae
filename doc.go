// Package otpAuth provides password signup and login with one-time-passcode
// step-up verification, abuse-resistant rate limiting, and rotating
// access/refresh token pairs.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]:
//
//	engine, err := otpAuth.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithCredentialStore(credential.NewMemoryStore()).
//		WithGateway(gateway).
//		WithLogger(logger).
//		Build()
//
// # Flows
//
//   - Signup creates an unverified credential and sends a signup code.
//   - Login checks the password. Unverified or step-up credentials receive a
//     code and must finish with VerifyOTP; everyone else gets tokens.
//   - ResendOTP supersedes the outstanding code without revealing whether
//     the identifier exists.
//   - Refresh rotates a refresh token exactly once.
//   - RequestPasswordReset and ConfirmPasswordReset replace a password and
//     revoke every session.
//
// Every flow is rate limited per identifier (and optionally per IP) and
// emits exactly one audit event per decision.
//
// # Architecture boundaries
//
// otpAuth is the orchestration layer. It owns no storage: challenges live in
// package otp, counters in internal/rate, sessions in package session behind
// package tokens, and credentials behind [credential.Store]. Codes leave the
// process only through a [notify.Gateway] driven by a bounded worker pool.
//
// # What this package must NOT do
//
//   - Log or audit plaintext codes, passwords or tokens.
//   - Block a request on notification delivery or audit sinks.
//   - Tell callers whether an identifier is registered, except through
//     Signup's ErrAlreadyExists.
package otpAuth
