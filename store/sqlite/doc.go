// Package sqlite implements agentauth.CredentialStore on SQLite through the pure-Go
// modernc.org/sqlite driver.
//
// Open creates the agents table when missing, so a fresh file is ready to use. Email, phone
// and uid carry UNIQUE constraints; a violation is returned as *agentauth.ConflictError
// naming the column. The store suits single-node deployments and local development.
package sqlite
