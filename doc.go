// Package agentauth provides field-agent authentication and credential recovery: password
// hashing and verification, signed session tokens, and an emailed one-time passcode flow
// backed by a short-lived Redis cache.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Operations
//
//   - [Engine.Register] creates an identity with a hashed password.
//   - [Engine.Login] checks a password and issues a session token.
//   - [Engine.RequestPasswordReset] mails a passcode to a registered email.
//   - [Engine.ConfirmOTP] checks the passcode and grants one password reset.
//   - [Engine.ResetPassword] replaces the credential once the grant is present.
//   - [Engine.ValidateToken] verifies a session token against the current credential.
//
// # Architecture boundaries
//
// agentauth is the public surface. It exposes [Engine], [Builder], [Config], the
// [CredentialStore] and [Mailer] collaborator interfaces, and value types. Flow
// orchestration, cache access, and audit dispatch live under internal/ and are never
// exported. Concrete stores live in store/postgres and store/sqlite; mail delivery in mail.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its public API.
//   - Return infrastructure error details to callers. They are logged and replaced by
//     [ErrStorageUnavailable] or [ErrCacheUnavailable].
//   - Log or audit passwords or passcodes.
//   - Import any sub-package that re-imports agentauth (no import cycles).
package agentauth
