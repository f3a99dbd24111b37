// Package postgres implements agentauth.CredentialStore on PostgreSQL through database/sql
// and lib/pq.
//
// The schema ships as embedded golang-migrate migrations; call RunMigrations before New.
// Unique constraints on email, phone and uid make duplicate registration atomic: the
// losing insert fails with SQLSTATE 23505 and is returned as *agentauth.ConflictError.
package postgres
