package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/apperr"
)

// ErrorBody is the uniform failure envelope.
type ErrorBody struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// ErrorHandler renders classified errors as ErrorBody with the status of
// their kind. echo's own errors (404 routes, 405, 413, 429) keep their
// code. Server-side failures are logged at error with their cause; domain
// rejections (4xx from a classified error) at warn. Callers only see the
// public message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)

		var ae *apperr.Error
		classified := errors.As(err, &ae)
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = logger.Error()
		case classified:
			evt = logger.Warn()
		}
		if evt != nil {
			evt = evt.Err(err).
				Int("status", status).
				Str("request_id", requestID(c)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path)
			if classified {
				evt = evt.Str("op", ae.Op).Str("kind", string(ae.Kind))
				if ae.Entity != "" {
					evt = evt.Str("entity", ae.Entity)
				}
			}
			evt.Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", requestID(c)).Msg("failed to write error response")
		}
	}
}

func render(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, ErrorBody{Message: msg}
	}
	return apperr.HTTPStatus(err), ErrorBody{
		Message:  apperr.PublicMessage(err),
		Redirect: apperr.RedirectOf(err),
	}
}
