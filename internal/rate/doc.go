// Package rate implements the Redis-backed attempt limiter keyed by
// (identifier, identifier type, action).
//
// # Window semantics
//
// Each key is one hash {count, ws, bu}. The first attempt opens a window at
// ws; attempts beyond MaxAttempts inside the window set bu = ws + Window and
// are denied until then; once the window has elapsed the next attempt opens a
// fresh one. Keys carry a PEXPIRE so idle counters are reaped.
//
// Key layout: <prefix>:<action>:<type>:"<identifier>"
//
// # What this package must NOT do
//
//   - Decide which action a flow consumes; the Engine does.
//   - Be imported outside the otpAuth module.
package rate
