package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/warden/internal/middleware"
	"github.com/keyxmakerx/warden/internal/plugins/auth"
)

// RegisterRoutes sets up all application routes. Access control is applied
// by the gate registered in setupMiddleware, so routes carry only their
// rate limits.
func (a *App) RegisterRoutes() {
	e := a.Echo

	e.GET("/healthz", a.healthz)

	loginLimit := middleware.RateLimit(a.counter, "auth", a.Config.Auth.LoginRateLimit, time.Minute)
	pinLimit := middleware.RateLimit(a.counter, "recovery", a.Config.Recovery.SendRateLimit, time.Minute)

	auth.RegisterRoutes(e, auth.NewHandler(a.Services.Auth, a.cookies), loginLimit, pinLimit)
}

// healthz reports whether MariaDB and, when configured, Redis answer.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if a.Redis != nil {
		status["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}
