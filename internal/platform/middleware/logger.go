package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/auth"
)

// Logger emits one line per request. Client errors log at warn, server
// errors at error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}

			evt := logger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn()
				if err != nil {
					evt = evt.Str("error", err.Error())
				}
			}

			evt.
				Str("request_id", requestID(c)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Str("user_id", auth.UserIDFromContext(c.Request().Context())).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}

// statusOf predicts the status the error handler will write for err.
func statusOf(err error) int {
	status, _ := render(err)
	return status
}
