package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/agentauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "agents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAgent(uid, email, phone string) agentauth.NewAgent {
	return agentauth.NewAgent{
		UID:          uid,
		FirstName:    "Ada",
		LastName:     "Field",
		Email:        email,
		Phone:        phone,
		PasswordHash: "$2a$10$placeholder",
		Status:       agentauth.StatusActive,
	}
}

func TestCreateAndFind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateAgent(ctx, newAgent("u-1", "ada@field.io", "+15550001"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, uint32(1), created.CredentialVersion)

	found, err := s.FindByEmail(ctx, "ada@field.io")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "u-1", found.UID)
	assert.Equal(t, "+15550001", found.Phone)
	assert.Equal(t, agentauth.StatusActive, found.Status)
	assert.Equal(t, uint32(1), found.CredentialVersion)
	assert.WithinDuration(t, created.CreatedAt, found.CreatedAt, time.Millisecond)
}

func TestFindByEmailNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.FindByEmail(context.Background(), "nobody@field.io")
	assert.ErrorIs(t, err, agentauth.ErrAgentNotFound)
}

func TestCreateAgentConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAgent(ctx, newAgent("u-1", "ada@field.io", "+15550001"))
	require.NoError(t, err)

	cases := []struct {
		agent agentauth.NewAgent
		field string
	}{
		{newAgent("u-2", "ada@field.io", "+15550002"), "email"},
		{newAgent("u-3", "bob@field.io", "+15550001"), "phone"},
		{newAgent("u-1", "cy@field.io", "+15550003"), "uid"},
	}
	for _, tc := range cases {
		_, err := s.CreateAgent(ctx, tc.agent)
		var conflict *agentauth.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, tc.field, conflict.Field)
		assert.ErrorIs(t, err, agentauth.ErrConflict)
	}
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateAgent(ctx, newAgent(
				"u-"+string(rune('a'+i)),
				"ada@field.io",
				"+1555000"+string(rune('0'+i)),
			))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, agentauth.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func TestUpdatePasswordHashBumpsVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAgent(ctx, newAgent("u-1", "ada@field.io", "+15550001"))
	require.NoError(t, err)

	require.NoError(t, s.UpdatePasswordHash(ctx, "u-1", "$2a$10$replaced"))

	found, err := s.FindByEmail(ctx, "ada@field.io")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$replaced", found.PasswordHash)
	assert.Equal(t, uint32(2), found.CredentialVersion)
	assert.False(t, found.UpdatedAt.Before(found.CreatedAt))

	assert.ErrorIs(t, s.UpdatePasswordHash(ctx, "missing", "x"), agentauth.ErrAgentNotFound)
}

func TestStatusRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	agent := newAgent("u-1", "ada@field.io", "+15550001")
	agent.Status = agentauth.StatusSuspended
	_, err := s.CreateAgent(ctx, agent)
	require.NoError(t, err)

	found, err := s.FindByEmail(ctx, "ada@field.io")
	require.NoError(t, err)
	assert.Equal(t, agentauth.StatusSuspended, found.Status)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.CreateAgent(ctx, newAgent("u-1", "ada@field.io", "+15550001"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.FindByEmail(ctx, "ada@field.io")
	assert.NoError(t, err)
}
