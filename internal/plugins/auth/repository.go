package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/database"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// CreateWithProfile inserts the user and profile rows in one transaction.
	CreateWithProfile(ctx context.Context, user *User, profile *Profile) error

	// RecordLogin stamps last_login_at and, when newHash is non-empty,
	// replaces the stored credential. The write only happens while the
	// stored credential still equals expectedHash.
	RecordLogin(ctx context.Context, userID, expectedHash, newHash string, at time.Time) error

	// UpdatePassword replaces the stored credential after a recovery reset.
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error

	FindProfile(ctx context.Context, userID string) (*Profile, error)
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, password_hash, is_active, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by their normalized email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

// EmailExists returns true if a user with the given email already exists.
// Used during signup to check for duplicates before hashing the password.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// CreateWithProfile inserts a user and its profile atomically. A duplicate
// email that slipped past EmailExists surfaces as a conflict.
func (r *userRepository) CreateWithProfile(ctx context.Context, user *User, profile *Profile) error {
	return database.WithTx(ctx, r.db, func(tx database.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, is_active, last_login_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.PasswordHash, user.IsActive,
			user.LastLoginAt, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
				return apperror.NewConflict("an account with this email already exists")
			}
			return fmt.Errorf("inserting user: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_profiles
			 (user_id, gender, last_name, first_name, phone, mobile, language, is_active, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			profile.UserID, profile.Gender, profile.LastName, profile.FirstName,
			profile.Phone, profile.Mobile, profile.Language, profile.IsActive, profile.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting profile: %w", err)
		}
		return nil
	})
}

// RecordLogin locks the user row, confirms the credential has not changed
// since it was verified, and writes the login stamp plus any upgraded hash.
func (r *userRepository) RecordLogin(ctx context.Context, userID, expectedHash, newHash string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx database.DBTX) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT password_hash FROM users WHERE id = ? AND is_active = TRUE FOR UPDATE`, userID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewUnauthorized("invalid email or password")
		}
		if err != nil {
			return fmt.Errorf("locking user row: %w", err)
		}
		if current != expectedHash {
			return apperror.NewUnauthorized("invalid email or password")
		}

		if newHash == "" {
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET last_login_at = ? WHERE id = ?`, at, userID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET password_hash = ?, last_login_at = ?, updated_at = ? WHERE id = ?`,
				newHash, at, at, userID)
		}
		if err != nil {
			return fmt.Errorf("recording login: %w", err)
		}
		return nil
	})
}

// UpdatePassword sets a new password hash and stamps the login time, since
// a successful reset signs the user in.
func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, last_login_at = ?, updated_at = ? WHERE id = ?`,
		passwordHash, at, at, userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// FindProfile retrieves the profile for a user.
// Returns apperror.NotFound if the user has no profile row.
func (r *userRepository) FindProfile(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, gender, last_name, first_name, phone, mobile, language, is_active, updated_at
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Gender, &p.LastName, &p.FirstName, &p.Phone, &p.Mobile,
		&p.Language, &p.IsActive, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}
