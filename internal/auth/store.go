package auth

import (
	"context"
	"time"
)

// UserStore is the user half of the credential store. Lookups that find no
// row return ErrRecordNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	// IncrementFailureCountAndMaybeLock applies RecordFailure to the stored
	// lockout state as one atomic read-modify-write and returns the result.
	IncrementFailureCountAndMaybeLock(ctx context.Context, userID string, now time.Time) (LockoutState, error)
	RecordSuccessfulLogin(ctx context.Context, userID string, state LockoutState, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	GetSessionByAccessToken(ctx context.Context, accessToken string) (Session, error)
	// ReplaceSessionTokens overwrites the tokens of the row holding
	// oldRefreshToken, provided it has not expired at now.
	ReplaceSessionTokens(ctx context.Context, oldRefreshToken string, next TokenPair, meta ClientMeta, now time.Time) (Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSessionByAccessToken(ctx context.Context, accessToken string) error
	// DeleteSessionByRefreshToken returns ErrRecordNotFound when no row holds
	// the token.
	DeleteSessionByRefreshToken(ctx context.Context, refreshToken string) error
	// DeleteSessionByID returns the owning user id of the removed row.
	DeleteSessionByID(ctx context.Context, sessionID string) (string, error)
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type Store interface {
	UserStore
	SessionStore
}
