// Package audit relays security events to pluggable sinks.
//
// # Components
//
//   - [Event]: id, timestamp, type, actor, IP, outcome, error code, metadata.
//   - [Sink]: consumers (channel, JSON lines, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full.
//
// # Architecture boundaries
//
// This package buffers and delivers. Which events exist and when they fire is
// decided by the Engine.
//
// # What this package must NOT do
//
//   - Filter events on business rules.
//   - Import otpAuth or sibling internal packages.
package audit
