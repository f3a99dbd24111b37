package agentauth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type mockCredentialStore struct {
	mu      sync.Mutex
	byEmail map[string]AgentIdentity
	nextID  int64

	findErr   error
	createErr error
	updateErr error

	findCalls   int
	createCalls int
	updateCalls int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{
		byEmail: map[string]AgentIdentity{},
	}
}

func (m *mockCredentialStore) CreateAgent(ctx context.Context, agent NewAgent) (AgentIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return AgentIdentity{}, m.createErr
	}
	for _, existing := range m.byEmail {
		if existing.Email == agent.Email {
			return AgentIdentity{}, &ConflictError{Field: "email"}
		}
		if existing.Phone == agent.Phone {
			return AgentIdentity{}, &ConflictError{Field: "phone"}
		}
	}

	m.nextID++
	now := time.Now().UTC()
	record := AgentIdentity{
		ID:                m.nextID,
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
	}
	m.byEmail[agent.Email] = record
	return record, nil
}

func (m *mockCredentialStore) FindByEmail(ctx context.Context, email string) (AgentIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.findErr != nil {
		return AgentIdentity{}, m.findErr
	}
	record, ok := m.byEmail[email]
	if !ok {
		return AgentIdentity{}, ErrAgentNotFound
	}
	return record, nil
}

func (m *mockCredentialStore) UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	for email, record := range m.byEmail {
		if record.UID == uid {
			record.PasswordHash = passwordHash
			record.CredentialVersion++
			record.UpdatedAt = time.Now().UTC()
			m.byEmail[email] = record
			return nil
		}
	}
	return ErrAgentNotFound
}

func (m *mockCredentialStore) get(email string) (AgentIdentity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.byEmail[email]
	return record, ok
}

func (m *mockCredentialStore) put(record AgentIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[record.Email] = record
}

func (m *mockCredentialStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byEmail)
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last(t *testing.T) sentMail {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected at least one mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

var otpBodyPattern = regexp.MustCompile(`Your OTP is: (\d+),`)

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()

	mail := m.last(t)
	match := otpBodyPattern.FindStringSubmatch(mail.body)
	if len(match) != 2 {
		t.Fatalf("could not find passcode in mail body %q", mail.body)
	}
	return match[1]
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testSecret
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Metrics.Enabled = true
	return cfg
}

type testHarness struct {
	engine *Engine
	store  *mockCredentialStore
	mailer *captureMailer
	mr     *miniredis.Miniredis
}

func newTestHarness(t *testing.T, cfg Config, sink AuditSink) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMockCredentialStore()
	mailer := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{
		engine: engine,
		store:  store,
		mailer: mailer,
		mr:     mr,
	}
}

func (h *testHarness) register(t *testing.T, email, phone, password string) *AgentIdentity {
	t.Helper()

	agent, err := h.engine.Register(context.Background(), RegisterRequest{
		FirstName: "Ada",
		LastName:  "Field",
		Email:     email,
		Phone:     phone,
		Password:  password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return agent
}

// issueCode requests a reset and returns the mailed passcode.
func (h *testHarness) issueCode(t *testing.T, email string) string {
	t.Helper()

	if err := h.engine.RequestPasswordReset(context.Background(), email); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	return h.mailer.lastCode(t)
}

// otherCode returns a valid four-digit code different from code.
func otherCode(code string) string {
	if code == "1000" {
		return "1001"
	}
	return "1000"
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for %s, got %v", field, err)
	}
	if verr.Field != field {
		t.Fatalf("expected ValidationError field %q, got %q", field, verr.Field)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ValidationError to match ErrValidation")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
