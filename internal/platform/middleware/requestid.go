package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the correlation id in and out of the server.
const RequestIDHeader = "X-Request-ID"

// RequestID keeps a caller-supplied correlation id or mints one, and
// stores it under "request_id" for the logger and error handler.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
