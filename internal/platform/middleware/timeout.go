package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. When the
// deadline passes first the caller gets 504 and the handler's context is
// cancelled, which aborts any engine or database call it is waiting on.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeout(c)
				}
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeout(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]interface{}{
		"success": false,
		"message": "request processing exceeded the allowed time limit",
	})
}
