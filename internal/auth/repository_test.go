package auth_test

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-auth/internal/auth"
	"outreach-auth/internal/db"
)

// openTestRepository connects to TEST_DATABASE_URL and skips when it is unset.
func openTestRepository(t *testing.T) *auth.Repository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	database, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = db.RunMigrations(context.Background(), database)
	require.NoError(t, err)
	return auth.NewRepository(database)
}

func seedRepositoryUser(t *testing.T, repo *auth.Repository) auth.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := auth.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         auth.RoleUser,
		Status:       auth.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func TestRepositoryConcurrentFailuresAreAllCounted(t *testing.T) {
	repo := openTestRepository(t)
	user := seedRepositoryUser(t, repo)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementFailureCountAndMaybeLock(context.Background(), user.ID, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.FailedLoginAttempts)
	assert.True(t, auth.IsLocked(stored.Lockout(), now))
}

func TestRepositoryRotationIsSingleUse(t *testing.T) {
	repo := openTestRepository(t)
	user := seedRepositoryUser(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	session := auth.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    now.Add(auth.SessionTTL),
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	require.NoError(t, repo.CreateSession(ctx, session))

	next := auth.TokenPair{AccessToken: uuid.NewString(), RefreshToken: uuid.NewString(), ExpiresAt: now.Add(auth.SessionTTL)}
	rotated, err := repo.ReplaceSessionTokens(ctx, session.RefreshToken, next, auth.ClientMeta{UserAgent: "ua"}, now)
	require.NoError(t, err)
	assert.Equal(t, session.ID, rotated.ID)
	require.NotNil(t, rotated.UserAgent)

	_, err = repo.ReplaceSessionTokens(ctx, session.RefreshToken, next, auth.ClientMeta{}, now)
	require.ErrorIs(t, err, auth.ErrRecordNotFound)

	_, err = repo.GetSessionByAccessToken(ctx, session.AccessToken)
	require.ErrorIs(t, err, auth.ErrRecordNotFound)

	require.ErrorIs(t, repo.DeleteSessionByRefreshToken(ctx, session.RefreshToken), auth.ErrRecordNotFound)

	owner, err := repo.DeleteSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)
}

func TestRepositoryEmailLookupIgnoresCase(t *testing.T) {
	repo := openTestRepository(t)
	user := seedRepositoryUser(t, repo)

	_, err := repo.GetUserByEmail(context.Background(), "  "+user.Email)
	require.ErrorIs(t, err, auth.ErrRecordNotFound)

	found, err := repo.GetUserByEmail(context.Background(), strings.ToUpper(user.Email))
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}
