package sessions

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestCookieTransport_WriteAttributes(t *testing.T) {
	for _, secure := range []bool{false, true} {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		NewCookieTransport("session_id", 48*time.Hour, secure).Write(c, "abc")

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}
		ck := cookies[0]
		if ck.Name != "session_id" || ck.Value != "abc" {
			t.Errorf("unexpected cookie %s=%s", ck.Name, ck.Value)
		}
		if !ck.HttpOnly {
			t.Error("expected HttpOnly")
		}
		if ck.Secure != secure {
			t.Errorf("expected Secure=%v, got %v", secure, ck.Secure)
		}
		if ck.SameSite != http.SameSiteLaxMode {
			t.Errorf("expected SameSite=Lax, got %v", ck.SameSite)
		}
		if ck.MaxAge != 172800 {
			t.Errorf("expected max-age of two days, got %d", ck.MaxAge)
		}
		if ck.Path != "/" {
			t.Errorf("expected path /, got %q", ck.Path)
		}
	}
}

func TestCookieTransport_ReadAbsent(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	if got := NewCookieTransport("session_id", time.Hour, false).Read(c); got != "" {
		t.Errorf("expected empty token, got %q", got)
	}
}

func TestCookieTransport_ReadPresent(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok"})
	c := e.NewContext(req, httptest.NewRecorder())

	if got := NewCookieTransport("session_id", time.Hour, false).Read(c); got != "tok" {
		t.Errorf("expected tok, got %q", got)
	}
}

func TestCookieTransport_Clear(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	NewCookieTransport("session_id", time.Hour, false).Clear(c)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expiring cookie, got %+v", cookies)
	}
}
