// Package app is the application bootstrap and dependency injection root.
// It creates and holds the shared infrastructure (DB pool, Redis client,
// Echo instance) and wires the sessions, recovery, smtp and auth plugins
// together.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/config"
	"github.com/keyxmakerx/warden/internal/middleware"
	"github.com/keyxmakerx/warden/internal/plugins/auth"
	"github.com/keyxmakerx/warden/internal/plugins/recovery"
	"github.com/keyxmakerx/warden/internal/plugins/sessions"
	"github.com/keyxmakerx/warden/internal/plugins/smtp"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis backs rate limits and PIN attempt counters. Nil when disabled.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Services are the wired plugin services.
	Services *Services

	policy  *auth.RoutePolicy
	cookies *sessions.CookieTransport
	counter middleware.WindowCounter
}

// Services groups the plugin services built from config and storage. The
// sweeper command builds the same set without an HTTP server.
type Services struct {
	Sessions sessions.SessionService
	Recovery recovery.RecoveryService
	Mail     smtp.MailService
	Auth     auth.AuthService
}

// NewServices wires every plugin service. rdb may be nil.
func NewServices(cfg *config.Config, db *sql.DB, rdb *redis.Client) *Services {
	sessionSvc := sessions.NewSessionService(
		sessions.NewSessionRepository(db), cfg.Auth.SessionTTL, cfg.Auth.StoreTimeout)

	recoverySvc := recovery.NewRecoveryService(
		recovery.NewTokenRepository(db),
		recovery.NewAttemptLimiter(universal(rdb), cfg.Recovery.MaxPinAttempts, cfg.Recovery.TokenTTL),
		cfg.Recovery.TokenTTL,
		cfg.Auth.StoreTimeout,
	)

	mailSvc := smtp.NewMailService(cfg.SMTP)

	authSvc := auth.NewAuthService(
		auth.NewUserRepository(db),
		auth.NewHasher(cfg.Auth.PasswordHashCost),
		sessionSvc,
		recoverySvc,
		mailSvc,
		auth.ServiceConfig{
			RecoveryTTL:  cfg.Recovery.TokenTTL,
			StoreTimeout: cfg.Auth.StoreTimeout,
		},
	)

	return &Services{
		Sessions: sessionSvc,
		Recovery: recoverySvc,
		Mail:     mailSvc,
		Auth:     authSvc,
	}
}

// universal converts an optional client to the interface form without
// producing a typed nil.
func universal(rdb *redis.Client) redis.UniversalClient {
	if rdb == nil {
		return nil
	}
	return rdb
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	policy, err := auth.NewRoutePolicy(auth.DefaultRouteLists())
	if err != nil {
		return nil, fmt.Errorf("building route policy: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Echo:     e,
		Services: NewServices(cfg, db, rdb),
		policy:   policy,
		cookies:  sessions.NewCookieTransport(cfg.Auth.CookieName, cfg.Auth.SessionTTL, cfg.IsProduction()),
		counter:  middleware.NewWindowCounter(universal(rdb)),
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: recovery is outermost and the access gate runs last.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(echomw.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   append([]string{a.Config.BaseURL}, a.Config.HTTP.CORSOrigins...),
		AllowCredentials: true,
	}))
	a.Echo.Use(auth.Gate(a.policy, a.Services.Sessions, a.cookies))
}

// errorHandler maps errors to JSON responses of the form
// {"error": <type>, "message": <text>}. Internal causes are logged and
// never sent to the client.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := "an unexpected error occurred"

	var echoErr *echo.HTTPError
	if appErr, ok := apperror.As(err); ok {
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else if errors.As(err, &echoErr) {
		code = echoErr.Code
		errType = errorType(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = strings.ToLower(msg)
		} else {
			message = strings.ToLower(http.StatusText(code))
		}
	} else {
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, map[string]string{"error": errType, "message": message}); err != nil {
		slog.Error("writing error response", slog.Any("error", err))
	}
}

// errorType names router-level errors the same way apperror does.
func errorType(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if code >= 500 {
			return "internal_error"
		}
		return "error"
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Warden server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
