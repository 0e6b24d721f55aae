// Package internal holds helpers private to otpAuth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus Sink implementations)
//   - rate: Redis fixed-window counters with block keys
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpAuth API.
package internal
