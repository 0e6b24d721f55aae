// Package prometheus exposes engine counters through client_golang.
//
// [Exporter] implements [prometheus.Collector]. Register it into a registry
// you own, or mount [Exporter.Handler] which serves a private registry.
// Counter names are otpauth_*_total; the single histogram is
// otpauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the default global registry.
//   - Mutate engine state.
package prometheus
