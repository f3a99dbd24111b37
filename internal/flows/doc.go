// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRequestPasswordReset, RunConfirmOTP,
// RunResetPassword, RunValidateToken) accepts a typed dependency struct and returns results
// without side-effects beyond those dependencies. This keeps the Engine type thin and lets
// tests drive each flow with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, OTP and grant stores, mailer,
// JWT manager, audit dispatcher, and metrics. They do NOT own any of these resources.
// Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import agentauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
//   - Return infrastructure errors to the caller. They are logged and replaced.
package flows
