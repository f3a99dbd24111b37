// Package stores provides the short-lived records behind credential recovery: the pending
// OTP challenge for a recipient and the reset grant written once that challenge is confirmed.
//
// # Design
//
// Each store persists a versioned, binary-encoded record through the ephemeral keyed cache
// (internal/cache) with a TTL. Spending a record (Consume) is a conditional delete, so two
// concurrent requests cannot both succeed. Code comparisons are constant-time.
//
// # Architecture boundaries
//
// This package owns encoding and single-use semantics. It does NOT generate codes, send
// mail, or decide outcomes. Those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import agentauth or internal/flows.
//   - Log or expose OTP codes.
package stores
