package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery turns a handler panic into a 500 JSON response and logs the
// stack. A panic after the response was committed is only logged.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
				)
				if c.Response().Committed {
					return
				}
				returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
					"error":   "internal_error",
					"message": "an unexpected error occurred",
				})
			}()

			return next(c)
		}
	}
}
