package sessions

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieTransport carries the session token in a single HTTP cookie.
type CookieTransport struct {
	name   string
	maxAge int
	secure bool
}

// NewCookieTransport creates a transport for the named cookie. maxAge
// matches the session lifetime; secure marks the cookie Secure, which is
// only set in production.
func NewCookieTransport(name string, maxAge time.Duration, secure bool) *CookieTransport {
	return &CookieTransport{
		name:   name,
		maxAge: int(maxAge.Seconds()),
		secure: secure,
	}
}

// Name returns the cookie name.
func (t *CookieTransport) Name() string {
	return t.name
}

// Read returns the session token from the request cookie. A missing or empty
// cookie yields "" and is never an error.
func (t *CookieTransport) Read(c echo.Context) string {
	cookie, err := c.Cookie(t.name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// Write sets the session cookie on the response.
func (t *CookieTransport) Write(c echo.Context, token string) {
	c.SetCookie(t.cookie(token, t.maxAge))
}

// Clear expires the session cookie on the client.
func (t *CookieTransport) Clear(c echo.Context) {
	c.SetCookie(t.cookie("", -1))
}

func (t *CookieTransport) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     t.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
