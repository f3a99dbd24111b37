package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/agentauth"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	uid                TEXT    NOT NULL UNIQUE,
	first_name         TEXT    NOT NULL,
	last_name          TEXT    NOT NULL,
	email              TEXT    NOT NULL UNIQUE,
	phone              TEXT    NOT NULL UNIQUE,
	password_hash      TEXT    NOT NULL,
	status             TEXT    NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'suspended')),
	credential_version INTEGER NOT NULL DEFAULT 1,
	created_at         TEXT    NOT NULL,
	updated_at         TEXT    NOT NULL
);
`

const selectAgent = `SELECT id, uid, first_name, last_name, email, phone, password_hash, status,
	credential_version, created_at, updated_at FROM agents`

var _ agentauth.CredentialStore = (*Store)(nil)

// Store is an agentauth.CredentialStore backed by a local SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and bootstraps the agents table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PingContext reports whether the database file is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateAgent(ctx context.Context, agent agentauth.NewAgent) (agentauth.AgentIdentity, error) {
	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (uid, first_name, last_name, email, phone, password_hash, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.UID, agent.FirstName, agent.LastName, agent.Email, agent.Phone,
		agent.PasswordHash, agent.Status.String(), stamp, stamp,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return agentauth.AgentIdentity{}, &agentauth.ConflictError{Field: field}
		}
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to insert agent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to read agent id: %w", err)
	}

	return agentauth.AgentIdentity{
		ID:                id,
		UID:               agent.UID,
		FirstName:         agent.FirstName,
		LastName:          agent.LastName,
		Email:             agent.Email,
		Phone:             agent.Phone,
		PasswordHash:      agent.PasswordHash,
		Status:            agent.Status,
		CredentialVersion: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (agentauth.AgentIdentity, error) {
	row := s.db.QueryRowContext(ctx, selectAgent+` WHERE email = ?`, email)

	var (
		a                    agentauth.AgentIdentity
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.UID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.PasswordHash,
		&status, &a.CredentialVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return agentauth.AgentIdentity{}, agentauth.ErrAgentNotFound
	}
	if err != nil {
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to find agent by email: %w", err)
	}

	parsed, ok := agentauth.ParseAgentStatus(status)
	if !ok {
		return agentauth.AgentIdentity{}, fmt.Errorf("unknown agent status %q", status)
	}
	a.Status = parsed

	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return a, nil
}

// UpdatePasswordHash replaces the hash and advances credential_version in one statement.
func (s *Store) UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents
		    SET password_hash = ?, credential_version = credential_version + 1, updated_at = ?
		  WHERE uid = ?`,
		passwordHash, s.now().UTC().Format(time.RFC3339Nano), uid,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return agentauth.ErrAgentNotFound
	}
	return nil
}

// uniqueViolation reports the column named by a UNIQUE constraint failure, e.g.
// "UNIQUE constraint failed: agents.email".
func uniqueViolation(err error) (string, bool) {
	var serr *msqlite.Error
	if !errors.As(err, &serr) || serr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}

	msg := serr.Error()
	for _, field := range []string{"email", "phone", "uid"} {
		if strings.Contains(msg, "agents."+field) {
			return field, true
		}
	}
	return "unknown", true
}
