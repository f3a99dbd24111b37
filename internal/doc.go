// Package internal holds helpers private to agentauth: passcode generation, passcode
// parsing and nonce generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - cache: prefixed Redis cache with compare-and-delete
//   - config: server configuration (defaults, TOML file, environment)
//   - flows: pure-function orchestrators for every Engine operation
//   - httpapi: JSON HTTP surface for the server binary
//   - logging: slog setup for the server binary
//   - stores: versioned passcode and reset-grant records over the cache
//
// # What this package must NOT do
//
//   - Export types that appear in the public agentauth API.
package internal
