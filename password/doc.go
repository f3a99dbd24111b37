// Package password implements password hashing and verification with bcrypt and argon2id.
//
// # Output formats
//
// bcrypt hashes use the modular crypt format ($2a$, $2b$, $2y$). argon2id hashes use the
// PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Adaptive] hashes with one primary algorithm and verifies either format, so agents whose
// hash predates a configuration change can still log in; [Adaptive.NeedsUpgrade] tells the
// caller when to re-hash after a successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum length, reuse
// on reset) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other agentauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
