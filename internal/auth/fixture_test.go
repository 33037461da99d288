package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"outreach-auth/internal/audit/auditfake"
	"outreach-auth/internal/auth"
	"outreach-auth/internal/auth/authfake"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

var testMeta = auth.ClientMeta{IPAddress: "203.0.113.7", UserAgent: "go-test"}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock    *testClock
	store    *authfake.Store
	audit    *auditfake.Recorder
	hasher   auth.PasswordHasher
	sessions *auth.SessionManager
	service  *auth.Service
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, auth.NewBcryptHasher(bcrypt.MinCost), auditfake.NewRecorder())
}

func newFixtureWith(t *testing.T, hasher auth.PasswordHasher, recorder *auditfake.Recorder) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := authfake.NewStore()

	tokens, err := auth.NewTokenIssuer(testSecret, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)
	sessions := auth.NewSessionManager(store, tokens, nil, auth.WithSessionClock(clock.Now))

	service, err := auth.NewService(store, sessions, hasher, recorder, nil, auth.WithClock(clock.Now))
	require.NoError(t, err)

	return &fixture{
		clock:    clock,
		store:    store,
		audit:    recorder,
		hasher:   hasher,
		sessions: sessions,
		service:  service,
	}
}

func (f *fixture) seedUser(t *testing.T, email, password string, role auth.Role) auth.User {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	now := f.clock.Now()
	user := auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: hash,
		Role:         role,
		Status:       auth.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) user(t *testing.T, id string) auth.User {
	t.Helper()
	user, err := f.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (f *fixture) login(t *testing.T, email, password string) auth.LoginResult {
	t.Helper()
	result, err := f.service.Login(context.Background(), email, password, testMeta)
	require.NoError(t, err)
	return result
}
