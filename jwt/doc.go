// Package jwt issues and verifies the signed session tokens handed to agents after login.
//
// A token binds the agent email (sub), public UID (uid), and credential version (cv) to an
// absolute expiry. The package is stateless: revocation on credential change is decided by
// the Engine, which compares cv against the stored identity.
package jwt
