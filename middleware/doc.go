// Package middleware adapts agentauth token validation to net/http.
//
// [Guard] reads the Authorization header, calls ValidateToken and injects the validated
// claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision is delegated to
// ValidateToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the credential store.
package middleware
