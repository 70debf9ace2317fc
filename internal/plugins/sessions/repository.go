package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyxmakerx/warden/internal/apperror"
)

// SessionRepository defines the data access contract for session rows.
type SessionRepository interface {
	Create(ctx context.Context, r *Record) error

	// FindValid returns the session only when it is active, unexpired at
	// now, and owned by an active user. Returns apperror.NotFound otherwise.
	FindValid(ctx context.Context, token string, now time.Time) (*ResolvedRecord, error)

	Touch(ctx context.Context, token string, now time.Time) error
	Deactivate(ctx context.Context, token string) error
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// sessionRepository implements SessionRepository with MariaDB queries.
type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new active session.
func (r *sessionRepository) Create(ctx context.Context, s *Record) error {
	query := `INSERT INTO user_sessions
		(token, user_id, data, expires_at, is_active, ip_address, user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.Token, s.UserID, s.Data, s.ExpiresAt, s.IsActive,
		s.IPAddress, s.UserAgent, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// FindValid looks up a session by token with the validity predicate applied
// in SQL, joined with the owning user.
func (r *sessionRepository) FindValid(ctx context.Context, token string, now time.Time) (*ResolvedRecord, error) {
	query := `SELECT s.data, u.email, u.last_login_at
	          FROM user_sessions s
	          INNER JOIN users u ON u.id = s.user_id
	          WHERE s.token = ? AND s.is_active = TRUE AND s.expires_at > ?
	            AND u.is_active = TRUE`

	rec := &ResolvedRecord{}
	err := r.db.QueryRowContext(ctx, query, token, now).Scan(
		&rec.Data, &rec.Email, &rec.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return rec, nil
}

// Touch refreshes updated_at on a session.
func (r *sessionRepository) Touch(ctx context.Context, token string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET updated_at = ? WHERE token = ?`, now, token)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a session. Deactivating an unknown or already
// inactive token is not an error.
func (r *sessionRepository) Deactivate(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deactivating session: %w", err)
	}
	return nil
}

// DeactivateAllForUser soft-deletes every active session owned by userID.
func (r *sessionRepository) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE`, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivating user sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeactivateExpired marks every active session past its expiry inactive.
// Rows that are already inactive are not counted, so repeated calls return 0.
func (r *sessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE is_active = TRUE AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired sessions: %w", err)
	}
	return n, nil
}
