package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Access control is applied globally by Gate, so no per-route auth
// middleware is attached here.
//
// Credential endpoints take a limiter middleware to slow brute-force and
// credential stuffing; pinLimit guards the endpoints that send or check
// recovery PINs.
func RegisterRoutes(e *echo.Echo, h *Handler, loginLimit, pinLimit echo.MiddlewareFunc) {
	api := e.Group("/api/auth")
	api.POST("/login", h.Login, loginLimit)
	api.POST("/signup", h.Signup, loginLimit)
	api.POST("/logout", h.Logout)
	api.GET("/me", h.Me)

	rec := api.Group("/recovery")
	rec.POST("/send-pin", h.SendPin, pinLimit)
	rec.POST("/verify-pin", h.VerifyPin, pinLimit)
	rec.POST("/reset-password", h.ResetPassword, loginLimit)

	// Protected pages and the generic API, both gated.
	e.GET("/", h.Bootstrap)
	e.GET("/profile", h.Bootstrap)
	e.GET("/api/profile", h.GetProfile)
}
