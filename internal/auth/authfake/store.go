// Package authfake provides an in-memory credential store with the same
// atomicity guarantees as the Postgres repository.
package authfake

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"outreach-auth/internal/auth"
)

var _ auth.Store = (*Store)(nil)

var ErrDuplicate = errors.New("duplicate key")

type Store struct {
	mu       sync.Mutex
	users    map[string]auth.User
	sessions map[string]auth.Session

	// FailTouch makes TouchSession error, to exercise best-effort paths.
	FailTouch bool
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]auth.User),
		sessions: make(map[string]auth.Session),
	}
}

func (s *Store) CreateUser(_ context.Context, user auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ID == user.ID || strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return auth.User{}, auth.ErrRecordNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrRecordNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) IncrementFailureCountAndMaybeLock(_ context.Context, userID string, now time.Time) (auth.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return auth.LockoutState{}, auth.ErrRecordNotFound
	}
	next := auth.RecordFailure(user.Lockout(), now)
	user.FailedLoginAttempts = next.FailedAttempts
	user.LockedUntil = cloneTime(next.LockedUntil)
	user.UpdatedAt = now
	s.users[userID] = user
	return next, nil
}

func (s *Store) RecordSuccessfulLogin(_ context.Context, userID string, state auth.LockoutState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return auth.ErrRecordNotFound
	}
	user.FailedLoginAttempts = state.FailedAttempts
	user.LockedUntil = cloneTime(state.LockedUntil)
	user.LastLoginAt = &at
	user.LastActiveAt = &at
	user.UpdatedAt = at
	s.users[userID] = user
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return auth.ErrRecordNotFound
	}
	user.PasswordHash = hash
	user.UpdatedAt = at
	s.users[userID] = user
	return nil
}

func (s *Store) CreateSession(_ context.Context, session auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.ID == session.ID || existing.AccessToken == session.AccessToken || existing.RefreshToken == session.RefreshToken {
			return ErrDuplicate
		}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSessionByAccessToken(_ context.Context, accessToken string) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.AccessToken == accessToken {
			return session, nil
		}
	}
	return auth.Session{}, auth.ErrRecordNotFound
}

func (s *Store) ReplaceSessionTokens(_ context.Context, oldRefreshToken string, next auth.TokenPair, meta auth.ClientMeta, now time.Time) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.RefreshToken != oldRefreshToken || !session.ExpiresAt.After(now) {
			continue
		}
		session.AccessToken = next.AccessToken
		session.RefreshToken = next.RefreshToken
		session.ExpiresAt = next.ExpiresAt
		session.LastUsedAt = now
		if meta.IPAddress != "" {
			ip := meta.IPAddress
			session.IPAddress = &ip
		}
		if meta.UserAgent != "" {
			ua := meta.UserAgent
			session.UserAgent = &ua
		}
		s.sessions[id] = session
		return session, nil
	}
	return auth.Session{}, auth.ErrRecordNotFound
}

func (s *Store) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailTouch {
		return errors.New("touch unavailable")
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	session.LastUsedAt = at
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) DeleteSessionByAccessToken(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.AccessToken == accessToken {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) DeleteSessionByRefreshToken(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.RefreshToken == refreshToken {
			delete(s.sessions, id)
			return nil
		}
	}
	return auth.ErrRecordNotFound
}

func (s *Store) DeleteSessionByID(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return "", auth.ErrRecordNotFound
	}
	delete(s.sessions, sessionID)
	return session.UserID, nil
}

func (s *Store) DeleteSessionsByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) ListSessionsByUser(_ context.Context, userID string) ([]auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]auth.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, session := range s.sessions {
		if batchSize > 0 && count >= int64(batchSize) {
			break
		}
		if session.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// SessionCount is a test helper.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetUserStatus is a test helper standing in for an admin status change.
func (s *Store) SetUserStatus(userID string, status auth.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.users[userID]
	user.Status = status
	s.users[userID] = user
}

// SetUserRole is a test helper standing in for an admin role change.
func (s *Store) SetUserRole(userID string, role auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.users[userID]
	user.Role = role
	s.users[userID] = user
}

// DeleteUser is a test helper.
func (s *Store) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

func cloneUser(user auth.User) auth.User {
	user.LockedUntil = cloneTime(user.LockedUntil)
	user.LastLoginAt = cloneTime(user.LastLoginAt)
	user.LastActiveAt = cloneTime(user.LastActiveAt)
	return user
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
