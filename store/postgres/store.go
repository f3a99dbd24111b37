package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldops/agentauth"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// constraintFields maps unique constraint names to the field reported in ConflictError.
var constraintFields = map[string]string{
	"agents_uid_key":   "uid",
	"agents_email_key": "email",
	"agents_phone_key": "phone",
}

var _ agentauth.CredentialStore = (*Store)(nil)

// Store is an agentauth.CredentialStore backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open opens a connection pool for databaseURL. sql.Open does not dial; call PingContext
// to check connectivity.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

// New returns a Store over db. The agents table must already exist; see RunMigrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateAgent(ctx context.Context, agent agentauth.NewAgent) (agentauth.AgentIdentity, error) {
	out := agentauth.AgentIdentity{
		UID:          agent.UID,
		FirstName:    agent.FirstName,
		LastName:     agent.LastName,
		Email:        agent.Email,
		Phone:        agent.Phone,
		PasswordHash: agent.PasswordHash,
		Status:       agent.Status,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO agents (uid, first_name, last_name, email, phone, password_hash, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, credential_version, created_at, updated_at`,
		agent.UID, agent.FirstName, agent.LastName, agent.Email, agent.Phone,
		agent.PasswordHash, agent.Status.String(),
	).Scan(&out.ID, &out.CredentialVersion, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if conflict := conflictFromError(err); conflict != nil {
			return agentauth.AgentIdentity{}, conflict
		}
		return agentauth.AgentIdentity{}, fmt.Errorf("failed to insert agent: %w", err)
	}

	return out, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (agentauth.AgentIdentity, error) {
	var (
		a      agentauth.AgentIdentity
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uid, first_name, last_name, email, phone, password_hash, status,
		        credential_version, created_at, updated_at
		   FROM agents WHERE email = $1`,
		email,
	).Scan(&a.ID, &a.UID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.PasswordHash,
		&status, &a.CredentialVersion, &a.CreatedAt, &a.UpdatedAt)
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

	return a, nil
}

// UpdatePasswordHash replaces the hash and advances credential_version in one statement.
func (s *Store) UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents
		    SET password_hash = $1, credential_version = credential_version + 1, updated_at = now()
		  WHERE uid = $2`,
		passwordHash, uid,
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

func conflictFromError(err error) *agentauth.ConflictError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}

	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = "unknown"
	}
	return &agentauth.ConflictError{Field: field}
}
