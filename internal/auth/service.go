package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"outreach-auth/internal/audit"
	"outreach-auth/internal/observability"
)

// Service orchestrates login, logout, refresh and password changes. It holds
// no mutable state of its own and is safe for concurrent use.
type Service struct {
	users    UserStore
	sessions *SessionManager
	hasher   PasswordHasher
	audit    audit.Recorder
	logger   *observability.Logger
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(users UserStore, sessions *SessionManager, hasher PasswordHasher, recorder audit.Recorder, logger *observability.Logger, options ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, internal("load user", err)
	}

	now := s.now().UTC()
	if IsLocked(user.Lockout(), now) {
		return LoginResult{}, accountLocked(*user.LockedUntil, now)
	}

	if user.Status != StatusActive {
		return LoginResult{}, ErrAccountInactive
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			return LoginResult{}, internal("compare password", err)
		}
		return LoginResult{}, s.handleFailedLogin(ctx, user, now, meta)
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, RecordSuccess(), now); err != nil {
		return LoginResult{}, internal("record login", err)
	}

	session, err := s.sessions.Create(ctx, user.ID, user.Email, user.Role, meta)
	if err != nil {
		return LoginResult{}, internal("create session", err)
	}

	s.record(ctx, audit.Event{
		UserID:    &user.ID,
		Action:    audit.ActionLogin,
		Entity:    audit.EntityUser,
		EntityID:  &user.ID,
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	})

	return LoginResult{
		Tokens: TokenPair{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
		},
		User: user.Public(),
	}, nil
}

func (s *Service) handleFailedLogin(ctx context.Context, user User, now time.Time, meta ClientMeta) error {
	state, err := s.users.IncrementFailureCountAndMaybeLock(ctx, user.ID, now)
	if err != nil {
		return internal("record failed login", err)
	}

	if IsLocked(state, now) && !IsLocked(user.Lockout(), now) {
		s.logger.Warn("account_locked", map[string]any{
			"user_id":      user.ID,
			"attempts":     state.FailedAttempts,
			"locked_until": state.LockedUntil,
		})
		s.record(ctx, audit.Event{
			UserID:    &user.ID,
			Action:    audit.ActionAccountLocked,
			Entity:    audit.EntityUser,
			EntityID:  &user.ID,
			Changes:   map[string]any{"failedLoginAttempts": state.FailedAttempts, "lockedUntil": state.LockedUntil},
			IPAddress: optional(meta.IPAddress),
			UserAgent: optional(meta.UserAgent),
		})
	}

	return ErrInvalidCredentials
}

// Logout is idempotent: revoking an already deleted session succeeds.
func (s *Service) Logout(ctx context.Context, accessToken, userID string, meta ClientMeta) error {
	if err := s.sessions.RevokeByToken(ctx, accessToken); err != nil {
		return err
	}

	s.record(ctx, audit.Event{
		UserID:    &userID,
		Action:    audit.ActionLogout,
		Entity:    audit.EntityUser,
		EntityID:  &userID,
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	})
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrInvalidOrExpiredToken
	}

	userID, err := s.sessions.RefreshSubject(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return TokenPair{}, internal("load user", err)
	}
	if err != nil || user.Status != StatusActive {
		if err := s.sessions.RevokeByRefreshToken(ctx, refreshToken); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrUserInactive
	}

	session, err := s.sessions.Rotate(ctx, refreshToken, user, meta)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// ChangePassword stores the new hash and then destroys every session the
// user holds, including the caller's.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta ClientMeta) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return notFound("User not found")
		}
		return internal("load user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return ErrInvalidCurrentPassword
		}
		return internal("compare password", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal("hash password", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return internal("update password", err)
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{
		UserID:    &user.ID,
		Action:    audit.ActionPasswordChange,
		Entity:    audit.EntityUser,
		EntityID:  &user.ID,
		Changes:   map[string]any{"sessionsRevoked": revoked},
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	})
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (PublicUser, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return PublicUser{}, notFound("User not found")
		}
		return PublicUser{}, internal("load user", err)
	}
	return user.Public(), nil
}

func (s *Service) ListUserSessions(ctx context.Context, actor Identity, userID string) ([]SessionView, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrUnauthorized
	}

	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, session.View())
	}
	return views, nil
}

func (s *Service) RevokeSession(ctx context.Context, actor Identity, sessionID string, meta ClientMeta) error {
	if actor.Role != RoleAdmin {
		return ErrUnauthorized
	}

	ownerID, err := s.sessions.RevokeByID(ctx, sessionID)
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{
		UserID:    &actor.UserID,
		Action:    audit.ActionSessionRevoked,
		Entity:    audit.EntitySession,
		EntityID:  &sessionID,
		Changes:   map[string]any{"userId": ownerID},
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	})
	return nil
}

func (s *Service) RevokeUserSessions(ctx context.Context, actor Identity, userID string, meta ClientMeta) (int64, error) {
	if actor.Role != RoleAdmin {
		return 0, ErrUnauthorized
	}
	if userID == actor.UserID {
		return 0, ErrForbiddenSelfRevoke
	}

	count, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.record(ctx, audit.Event{
		UserID:    &actor.UserID,
		Action:    audit.ActionSessionsRevoked,
		Entity:    audit.EntityUser,
		EntityID:  &userID,
		Changes:   map[string]any{"sessionsRevoked": count},
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	})
	return count, nil
}

// EnsureAdmin creates an active admin account when none exists for email.
// Existing accounts are left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return false, nil
	}
	if email == "" || password == "" {
		return false, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}
	if len(password) < MinPasswordLength {
		return false, fmt.Errorf("ADMIN_PASSWORD must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return false, fmt.Errorf("ADMIN_PASSWORD must be at most %d bytes", MaxPasswordBytes)
	}

	_, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return false, fmt.Errorf("generate uuid v7: %w", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.CreateUser(ctx, User{
		ID:           id.String(),
		Email:        email,
		FirstName:    "Admin",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

// record appends an audit event. Failures are logged and never returned.
func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.CreatedAt = s.now().UTC()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("audit_record_failed", map[string]any{
			"action": event.Action,
			"error":  err.Error(),
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
