// Package cache implements the ephemeral keyed cache that holds short-lived challenge state.
//
// Values are opaque bytes stored in Redis with a TTL. Reads of missing and expired keys both
// return [ErrAbsent]. Conditional deletes use WATCH/MULTI with bounded retry.
//
// # What this package must NOT do
//
//   - Interpret stored values. Encoding belongs to internal/stores.
//   - Import agentauth or any sibling internal package.
package cache
