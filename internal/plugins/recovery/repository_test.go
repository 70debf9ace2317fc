package recovery

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/warden/internal/apperror"
)

func newMockRepo(t *testing.T) (TokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTokenRepository(db), mock
}

func TestRepository_Replace_SingleTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &Token{
		UserID: "u1", Pin: "482913", Handle: "h",
		ExpiresAt: now.Add(30 * time.Minute), IsActive: true, CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recovery_tokens SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recovery_tokens").
		WithArgs("u1", "482913", "h", tok.ExpiresAt, true, now).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Replace(context.Background(), tok))
	assert.EqualValues(t, 7, tok.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Replace_RollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE recovery_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recovery_tokens").WillReturnError(errors.New("duplicate handle"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), &Token{UserID: "u1"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindUsableByHandle_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INNER JOIN users u ON u.id = t.user_id")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindUsableByHandle(context.Background(), "h", time.Now())
	assert.True(t, apperror.IsCode(err, 404), "expected not found, got %v", err)
}

func TestRepository_FindActiveByPin(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("t.user_id = ? AND t.pin = ? AND t.is_active = TRUE AND t.expires_at > ?")).
		WithArgs("u1", "482913", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "pin", "handle", "expires_at", "is_active", "created_at"}).
			AddRow(3, "u1", "482913", "h", now.Add(time.Minute), true, now))

	tok, err := repo.FindActiveByPin(context.Background(), "u1", "482913", now)
	require.NoError(t, err)
	assert.Equal(t, "h", tok.Handle)
	assert.True(t, tok.Usable(now))
}
