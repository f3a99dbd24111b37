// Package otel publishes agentauth engine counters through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter. The validate
// latency histogram becomes a cumulative bucket gauge keyed by an "le" attribute plus a
// count gauge. A single callback reads [agentauth.Engine.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
