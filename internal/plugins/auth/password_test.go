package auth

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/warden/internal/apperror"
)

func TestHasher_Verify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hashed, err := h.Hash("correct-horse-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		submitted string
		stored    string
		want      VerificationKind
	}{
		{"hash match", "correct-horse-1", hashed, HashedMatch},
		{"hash mismatch", "wrong", hashed, NoMatch},
		{"legacy match", "plain123456789", "plain123456789", LegacyMatch},
		{"legacy mismatch", "plain12345678", "plain123456789", NoMatch},
		{"empty stored", "", "", NoMatch},
		{"corrupt hash", "x", "$2a$10$short", NoMatch},
		{"hash string is not a password", hashed, hashed, NoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := h.Verify(tt.submitted, tt.stored)
			assert.Equal(t, tt.want, v.Kind)
			assert.Equal(t, tt.want != NoMatch, v.Matches())
			assert.Equal(t, tt.want == LegacyMatch, v.NeedsUpgrade())
		})
	}
}

func TestIsHashed(t *testing.T) {
	assert.True(t, IsHashed("$2a$12$abcdefghijklmnopqrstuv"))
	assert.True(t, IsHashed("$2b$10$abc"))
	assert.True(t, IsHashed("$2y$04$abc"))
	assert.False(t, IsHashed("plain123456789"))
	assert.False(t, IsHashed("$2z$10$abc"))
	assert.False(t, IsHashed(""))
}

func TestHasher_HashUsesCost(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hashed, err := h.Hash("correct-horse-1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.True(t, IsHashed(hashed))
}

func TestHasher_BurnBuildsDecoyOnce(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.Burn("first-guess-1")
	decoy := h.decoy
	require.NotEmpty(t, decoy)
	assert.True(t, IsHashed(string(decoy)))

	h.Burn("second-guess-2")
	assert.Equal(t, decoy, h.decoy)
	assert.NoError(t, bcrypt.CompareHashAndPassword(h.decoy, []byte(decoyPassword)))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("correct-horse-1"))
	assert.NoError(t, ValidatePassword("éééééééééééé1"))

	tests := []struct {
		name     string
		password string
		wantMsgs []string
	}{
		{"too short", "abc1", []string{"at least 12 characters"}},
		{"no digit", "abcdefghijklm", []string{"at least 1 digit"}},
		{"no letter", "123456789012", []string{"at least 1 letter"}},
		{"too long", strings.Repeat("a1", 37), []string{"at most 72 bytes"}},
		{"empty", "", []string{"at least 12 characters", "at least 1 letter", "at least 1 digit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, appErr.Code)
			for _, msg := range tt.wantMsgs {
				assert.Contains(t, appErr.Message, msg)
			}
		})
	}
}
