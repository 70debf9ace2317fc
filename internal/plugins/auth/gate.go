package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/warden/internal/plugins/sessions"
)

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated user's information.
const (
	contextKeySession = "auth_session"
	contextKeyUserID  = "auth_user_id"
)

// SessionResolver turns a session token into its payload. Implementations
// report every failure as ok == false.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*sessions.SessionData, bool)
}

// Gate returns the site-wide access middleware. Each request path is
// classified by policy and handled as follows:
//
//   - excluded: passed through, no session lookup
//   - protected: requires a session, otherwise 302 to login with ?redirect=
//   - public: signed-in users are sent to the landing page
//   - api: requires a session, otherwise 401 JSON
//   - other: passed through
func Gate(policy *RoutePolicy, resolver SessionResolver, cookies *sessions.CookieTransport) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			switch policy.Classify(path) {
			case RouteProtected:
				if !authenticate(c, resolver, cookies) {
					return c.Redirect(http.StatusFound, policy.LoginRedirect(path))
				}
			case RoutePublic:
				if authenticate(c, resolver, cookies) {
					return c.Redirect(http.StatusFound, policy.LandingPath)
				}
			case RouteAPI:
				if !authenticate(c, resolver, cookies) {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error":   "unauthorized",
						"message": "authentication required",
					})
				}
			}
			return next(c)
		}
	}
}

// authenticate resolves the request's session cookie and, when valid,
// stores the session in the Echo context. A stale cookie is cleared.
func authenticate(c echo.Context, resolver SessionResolver, cookies *sessions.CookieTransport) bool {
	token := cookies.Read(c)
	if token == "" {
		return false
	}

	data, ok := resolver.Resolve(c.Request().Context(), token)
	if !ok {
		cookies.Clear(c)
		return false
	}

	c.Set(contextKeySession, data)
	c.Set(contextKeyUserID, data.UserID)
	return true
}

// --- Exported getters for other plugins ---

// GetSession retrieves the authenticated session from the Echo context.
// Returns nil if the gate did not authenticate this request.
func GetSession(c echo.Context) *sessions.SessionData {
	session, ok := c.Get(contextKeySession).(*sessions.SessionData)
	if !ok {
		return nil
	}
	return session
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}
