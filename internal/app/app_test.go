package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:     "development",
		Port:    8080,
		BaseURL: "http://localhost:8080",
		Auth: config.AuthConfig{
			SessionTTL:       48 * time.Hour,
			CookieName:       "session_id",
			PasswordHashCost: 4,
			StoreTimeout:     time.Second,
			LoginRateLimit:   2,
		},
		Recovery: config.RecoveryConfig{
			TokenTTL:       30 * time.Minute,
			MaxPinAttempts: 5,
			SendRateLimit:  5,
		},
	}
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a, err := New(testConfig(), db, nil)
	require.NoError(t, err)
	a.RegisterRoutes()
	return a, mock
}

func do(a *App, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	a, _ := newTestApp(t)

	rec := do(a, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestProtectedPageRedirectsToLogin(t *testing.T) {
	a, mock := newTestApp(t)

	rec := do(a, http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?redirect=/profile", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIWithoutSessionIs401(t *testing.T) {
	a, _ := newTestApp(t)

	rec := do(a, http.MethodGet, "/api/profile", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])
}

func TestMalformedSessionCookieSkipsStore(t *testing.T) {
	a, mock := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "not-a-token"})
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginValidationError(t *testing.T) {
	a, _ := newTestApp(t)

	rec := do(a, http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Contains(t, body["message"], "email is required")
}

func TestLoginRateLimited(t *testing.T) {
	a, _ := newTestApp(t)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusBadRequest, do(a, http.MethodPost, "/api/auth/login", `{}`).Code)
	}
	rec := do(a, http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	a, _ := newTestApp(t)

	rec := do(a, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["error"])
}

func TestErrorHandler_HidesInternalCause(t *testing.T) {
	a, _ := newTestApp(t)

	for _, err := range []error{
		apperror.NewInternal(errors.New("table users is corrupt")),
		errors.New("raw failure"),
	} {
		rec := httptest.NewRecorder()
		c := a.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/api/x", nil), rec)
		a.errorHandler(err, c)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "corrupt")
		assert.NotContains(t, rec.Body.String(), "raw failure")
		assert.Equal(t, "internal_error", decode(t, rec)["error"])
	}
}
