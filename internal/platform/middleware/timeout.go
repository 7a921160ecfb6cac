package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that bounds each request with a
// context deadline. A saga that stalls on the database or the pricing
// upstream gets cancelled instead of holding the connection open; the
// client receives a 504 and may retry the trigger.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			result := make(chan error, 1)
			go func() { result <- next(c) }()

			select {
			case err := <-result:
				return err
			case <-ctx.Done():
			}

			if ctx.Err() != context.DeadlineExceeded {
				// Cancelled for another reason, e.g. client disconnect.
				return ctx.Err()
			}
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "request processing exceeded the allowed time limit",
			})
		}
	}
}
