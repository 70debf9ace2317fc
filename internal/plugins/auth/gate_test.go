package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/warden/internal/plugins/sessions"
)

const testCookie = "warden_session"

// countingResolver wraps fakeSessions and counts lookups.
type countingResolver struct {
	*fakeSessions
	calls int
}

func (r *countingResolver) Resolve(ctx context.Context, token string) (*sessions.SessionData, bool) {
	r.calls++
	return r.fakeSessions.Resolve(ctx, token)
}

func newGateEcho(t *testing.T) (*echo.Echo, *countingResolver, string) {
	t.Helper()
	resolver := &countingResolver{fakeSessions: newFakeSessions()}
	token, err := resolver.Create(context.Background(), "u1", sessions.SessionData{Email: "a@x.com"}, sessions.ClientInfo{})
	require.NoError(t, err)

	e := echo.New()
	e.Use(Gate(defaultPolicy(t), resolver, sessions.NewCookieTransport(testCookie, time.Hour, false)))

	ok := func(c echo.Context) error {
		return c.String(http.StatusOK, GetUserID(c))
	}
	for _, p := range []string{"/", "/profile", "/auth/login", "/api/profile", "/api/auth/login", "/about"} {
		e.GET(p, ok)
	}
	return e, resolver, token
}

func serve(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGate_ProtectedWithoutSessionRedirects(t *testing.T) {
	e, _, _ := newGateEcho(t)

	rec := serve(e, "/profile", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?redirect=/profile", rec.Header().Get("Location"))
}

func TestGate_ProtectedWithSession(t *testing.T) {
	e, _, token := newGateEcho(t)

	rec := serve(e, "/profile", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestGate_APIWithoutSessionIs401JSON(t *testing.T) {
	e, _, _ := newGateEcho(t)

	rec := serve(e, "/api/profile", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestGate_PublicWhileSignedInGoesToLanding(t *testing.T) {
	e, _, token := newGateEcho(t)

	rec := serve(e, "/auth/login", token)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = serve(e, "/auth/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_ExcludedAndOtherSkipLookup(t *testing.T) {
	e, resolver, token := newGateEcho(t)

	assert.Equal(t, http.StatusOK, serve(e, "/api/auth/login", token).Code)
	assert.Equal(t, http.StatusOK, serve(e, "/about", token).Code)
	assert.Zero(t, resolver.calls)
}

func TestGate_StaleCookieIsCleared(t *testing.T) {
	e, _, _ := newGateEcho(t)

	rec := serve(e, "/api/profile", "0000000000000000000000000000000000000000000000000000000000000000")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
