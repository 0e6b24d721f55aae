// Package credential stores identities, password hashes and login-failure
// state.
//
// Two implementations ship: [MemoryStore] for tests and demos, and
// [PostgresStore] on pgx. Both make the failure increment and lockout a single
// atomic step.
//
// # What this package must NOT do
//
//   - Hash or verify passwords.
//   - Normalize identifiers; callers pass canonical email/phone values.
package credential
