package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/warden/internal/apperror"
)

type signupForm struct {
	Email    string `json:"email" validate:"required,email"`
	Gender   string `json:"gender" validate:"omitempty,oneof=homme femme neutre"`
	Password string `json:"password" validate:"required"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(&signupForm{Email: "a@x.com", Password: "pw"}))
}

func TestValidator_ReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&signupForm{Email: "not-an-email", Gender: "other"})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "email must be a valid email address")
	assert.Contains(t, appErr.Message, "gender must be one of: homme femme neutre")
	assert.Contains(t, appErr.Message, "password is required")
}

func TestValidator_NonStructIsBadRequest(t *testing.T) {
	err := NewValidator().Validate("nope")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}
