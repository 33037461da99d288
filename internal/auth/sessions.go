package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach-auth/internal/observability"
)

// SessionManager owns session rows. A row is the final word on whether an
// access token is still usable, whatever its signature says.
type SessionManager struct {
	store  SessionStore
	tokens *TokenIssuer
	logger *observability.Logger
	now    func() time.Time
}

type SessionManagerOption func(*SessionManager)

func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

func NewSessionManager(store SessionStore, tokens *TokenIssuer, logger *observability.Logger, options ...SessionManagerOption) *SessionManager {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	m := &SessionManager{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *SessionManager) Create(ctx context.Context, userID, email string, role Role, meta ClientMeta) (Session, error) {
	pair, err := m.tokens.Issue(userID, email, role)
	if err != nil {
		return Session{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now().UTC()
	session := Session{
		ID:           id.String(),
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		IPAddress:    optional(meta.IPAddress),
		UserAgent:    optional(meta.UserAgent),
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Validate checks the signature and claim expiry, then requires a live row
// holding exactly this token.
func (m *SessionManager) Validate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := m.tokens.ParseAccess(accessToken)
	if err != nil {
		return Identity{}, ErrInvalidOrExpiredToken
	}

	session, err := m.store.GetSessionByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Identity{}, ErrInvalidOrExpiredToken
		}
		return Identity{}, internal("load session", err)
	}

	now := m.now().UTC()
	if !session.ExpiresAt.After(now) {
		return Identity{}, ErrInvalidOrExpiredToken
	}

	if err := m.store.TouchSession(ctx, session.ID, now); err != nil {
		m.logger.Warn("session_touch_failed", map[string]any{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}

	return Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: session.ID,
	}, nil
}

// RefreshSubject returns the user id a refresh token was issued to, without
// consulting the session row.
func (m *SessionManager) RefreshSubject(refreshToken string) (string, error) {
	claims, err := m.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", ErrInvalidOrExpiredToken
	}
	return claims.UserID, nil
}

// Rotate swaps the token pair of the row holding refreshToken in place. The
// new tokens carry the email and role of user as it is now, not as it was
// when the old pair was issued.
func (m *SessionManager) Rotate(ctx context.Context, refreshToken string, user User, meta ClientMeta) (Session, error) {
	claims, err := m.tokens.ParseRefresh(refreshToken)
	if err != nil || claims.UserID != user.ID {
		return Session{}, ErrInvalidOrExpiredToken
	}

	pair, err := m.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, err
	}

	session, err := m.store.ReplaceSessionTokens(ctx, refreshToken, pair, meta, m.now().UTC())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Session{}, ErrInvalidOrExpiredToken
		}
		return Session{}, internal("rotate session", err)
	}
	return session, nil
}

// RevokeByToken deletes the row holding accessToken. A missing row is fine.
func (m *SessionManager) RevokeByToken(ctx context.Context, accessToken string) error {
	if err := m.store.DeleteSessionByAccessToken(ctx, accessToken); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return internal("delete session", err)
	}
	return nil
}

// RevokeByRefreshToken deletes the row holding refreshToken.
func (m *SessionManager) RevokeByRefreshToken(ctx context.Context, refreshToken string) error {
	if err := m.store.DeleteSessionByRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return internal("delete session", err)
	}
	return nil
}

func (m *SessionManager) RevokeByID(ctx context.Context, sessionID string) (string, error) {
	userID, err := m.store.DeleteSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return "", notFound("Session not found")
		}
		return "", internal("delete session", err)
	}
	return userID, nil
}

func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	count, err := m.store.DeleteSessionsByUser(ctx, userID)
	if err != nil {
		return 0, internal("delete user sessions", err)
	}
	return count, nil
}

func (m *SessionManager) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := m.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, internal("list sessions", err)
	}
	return sessions, nil
}
