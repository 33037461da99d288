package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*Repository)(nil)

// Repository is the Postgres credential store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, role, status,
	failed_login_attempts, locked_until, last_login_at, last_active_at, created_at, updated_at`

func (r *Repository) CreateUser(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash, string(user.Role), string(user.Status), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return User{}, wrapNotFound(err, "query user by email")
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return User{}, wrapNotFound(err, "query user by id")
	}
	return user, nil
}

// IncrementFailureCountAndMaybeLock holds the user row lock across the read,
// the lockout transition and the write, so concurrent failures never collapse.
func (r *Repository) IncrementFailureCountAndMaybeLock(ctx context.Context, userID string, now time.Time) (LockoutState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return LockoutState{}, fmt.Errorf("begin failed login tx: %w", err)
	}
	defer tx.Rollback()

	var state LockoutState
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_login_attempts, locked_until
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&state.FailedAttempts, &lockedUntil)
	if err != nil {
		return LockoutState{}, wrapNotFound(err, "lock user row")
	}
	state.LockedUntil = timePtr(lockedUntil)

	next := RecordFailure(state, now)

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, userID, next.FailedAttempts, nullTime(next.LockedUntil), now.UTC())
	if err != nil {
		return LockoutState{}, fmt.Errorf("update failed login attempts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return LockoutState{}, fmt.Errorf("commit failed login tx: %w", err)
	}

	return next, nil
}

func (r *Repository) RecordSuccessfulLogin(ctx context.Context, userID string, state LockoutState, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, locked_until = $3, last_login_at = $4, last_active_at = $4, updated_at = $4
		WHERE id = $1
	`, userID, state.FailedAttempts, nullTime(state.LockedUntil), at.UTC())
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}
	return nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, hash, at.UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireAffected(res, "update password hash")
}

const sessionColumns = `id, user_id, access_token, refresh_token, expires_at, ip_address, user_agent, created_at, last_used_at`

func (r *Repository) CreateSession(ctx context.Context, session Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.UserID, session.AccessToken, session.RefreshToken, session.ExpiresAt.UTC(),
		session.IPAddress, session.UserAgent, session.CreatedAt.UTC(), session.LastUsedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetSessionByAccessToken(ctx context.Context, accessToken string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE access_token = $1`, accessToken)
	session, err := scanSession(row)
	if err != nil {
		return Session{}, wrapNotFound(err, "query session by access token")
	}
	return session, nil
}

// ReplaceSessionTokens is a single conditional UPDATE, so two rotations of the
// same refresh token cannot both succeed.
func (r *Repository) ReplaceSessionTokens(ctx context.Context, oldRefreshToken string, next TokenPair, meta ClientMeta, now time.Time) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET access_token = $2,
			refresh_token = $3,
			expires_at = $4,
			last_used_at = $5,
			ip_address = COALESCE($6, ip_address),
			user_agent = COALESCE($7, user_agent)
		WHERE refresh_token = $1 AND expires_at > $5
		RETURNING `+sessionColumns,
		oldRefreshToken, next.AccessToken, next.RefreshToken, next.ExpiresAt.UTC(), now.UTC(),
		optional(meta.IPAddress), optional(meta.UserAgent))
	session, err := scanSession(row)
	if err != nil {
		return Session{}, wrapNotFound(err, "rotate session")
	}
	return session, nil
}

func (r *Repository) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_used_at = $2 WHERE id = $1`, sessionID, at.UTC())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteSessionByAccessToken(ctx context.Context, accessToken string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE access_token = $1`, accessToken)
	if err != nil {
		return fmt.Errorf("delete session by token: %w", err)
	}
	return nil
}

func (r *Repository) DeleteSessionByRefreshToken(ctx context.Context, refreshToken string) error {
	var id string
	err := r.db.QueryRowContext(ctx, `DELETE FROM sessions WHERE refresh_token = $1 RETURNING id`, refreshToken).Scan(&id)
	if err != nil {
		return wrapNotFound(err, "delete session by refresh token")
	}
	return nil
}

func (r *Repository) DeleteSessionByID(ctx context.Context, sessionID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `DELETE FROM sessions WHERE id = $1 RETURNING user_id`, sessionID).Scan(&userID)
	if err != nil {
		return "", wrapNotFound(err, "delete session by id")
	}
	return userID, nil
}

func (r *Repository) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("user sessions rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM sessions
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM sessions s
		USING stale
		WHERE s.id = stale.id
	`, before.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var role, status string
	var lockedUntil, lastLoginAt, lastActiveAt sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &role, &status,
		&user.FailedLoginAttempts, &lockedUntil, &lastLoginAt, &lastActiveAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	user.Role = Role(role)
	user.Status = UserStatus(status)
	user.LockedUntil = timePtr(lockedUntil)
	user.LastLoginAt = timePtr(lastLoginAt)
	user.LastActiveAt = timePtr(lastActiveAt)
	return user, nil
}

func scanSession(row rowScanner) (Session, error) {
	var session Session
	var ipAddress, userAgent sql.NullString
	err := row.Scan(&session.ID, &session.UserID, &session.AccessToken, &session.RefreshToken, &session.ExpiresAt,
		&ipAddress, &userAgent, &session.CreatedAt, &session.LastUsedAt)
	if err != nil {
		return Session{}, err
	}
	if ipAddress.Valid {
		session.IPAddress = &ipAddress.String
	}
	if userAgent.Valid {
		session.UserAgent = &userAgent.String
	}
	return session, nil
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
