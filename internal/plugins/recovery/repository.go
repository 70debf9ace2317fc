package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/database"
)

// TokenRepository defines the data access contract for recovery tokens.
type TokenRepository interface {
	// Replace deactivates every active token for t.UserID and inserts t in
	// the same transaction.
	Replace(ctx context.Context, t *Token) error

	// FindActiveByPin returns the active, unexpired token for userID whose
	// PIN equals pin.
	FindActiveByPin(ctx context.Context, userID, pin string, now time.Time) (*Token, error)

	// FindUsableByHandle returns the active, unexpired token for handle whose
	// owner is an active user.
	FindUsableByHandle(ctx context.Context, handle string, now time.Time) (*Token, error)

	Deactivate(ctx context.Context, handle string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// tokenRepository implements TokenRepository with MariaDB queries.
type tokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new recovery token repository.
func NewTokenRepository(db *sql.DB) TokenRepository {
	return &tokenRepository{db: db}
}

const tokenColumns = `t.id, t.user_id, t.pin, t.handle, t.expires_at, t.is_active, t.created_at`

// Replace swaps in a new active token for the user.
func (r *tokenRepository) Replace(ctx context.Context, t *Token) error {
	return database.WithTx(ctx, r.db, func(tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE recovery_tokens SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE`,
			t.UserID,
		); err != nil {
			return fmt.Errorf("deactivating previous tokens: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO recovery_tokens (user_id, pin, handle, expires_at, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.UserID, t.Pin, t.Handle, t.ExpiresAt, t.IsActive, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting recovery token: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			t.ID = id
		}
		return nil
	})
}

// FindActiveByPin looks up the user's live token carrying pin.
func (r *tokenRepository) FindActiveByPin(ctx context.Context, userID, pin string, now time.Time) (*Token, error) {
	query := `SELECT ` + tokenColumns + `
	          FROM recovery_tokens t
	          WHERE t.user_id = ? AND t.pin = ? AND t.is_active = TRUE AND t.expires_at > ?
	          ORDER BY t.id DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, pin, now))
}

// FindUsableByHandle looks up a live token by its handle, joined with the
// owning user's active flag.
func (r *tokenRepository) FindUsableByHandle(ctx context.Context, handle string, now time.Time) (*Token, error) {
	query := `SELECT ` + tokenColumns + `
	          FROM recovery_tokens t
	          INNER JOIN users u ON u.id = t.user_id
	          WHERE t.handle = ? AND t.is_active = TRUE AND t.expires_at > ?
	            AND u.is_active = TRUE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, handle, now))
}

// Deactivate marks the token with handle inactive.
func (r *tokenRepository) Deactivate(ctx context.Context, handle string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recovery_tokens SET is_active = FALSE WHERE handle = ?`, handle)
	if err != nil {
		return fmt.Errorf("deactivating recovery token: %w", err)
	}
	return nil
}

// DeactivateExpired marks every active token past its expiry inactive.
func (r *tokenRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE recovery_tokens SET is_active = FALSE WHERE is_active = TRUE AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired recovery tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired recovery tokens: %w", err)
	}
	return n, nil
}

func (r *tokenRepository) scanOne(row *sql.Row) (*Token, error) {
	t := &Token{}
	err := row.Scan(&t.ID, &t.UserID, &t.Pin, &t.Handle, &t.ExpiresAt, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("recovery token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recovery token: %w", err)
	}
	return t, nil
}
