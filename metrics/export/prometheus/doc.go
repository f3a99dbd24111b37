// Package prometheus exposes agentauth engine counters as a Prometheus collector.
//
// [NewCollector] returns a prometheus.Collector that the caller registers wherever it
// likes. [Handler] wraps one in a private registry for a standalone /metrics endpoint.
// Counter names are prefixed agentauth_ and end in _total; the single histogram is
// agentauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
