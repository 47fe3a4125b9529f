package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/auth"
)

// AuditEntry records one access to health data: who, what, when, from
// where and with what outcome.
type AuditEntry struct {
	UserID     string
	Role       auth.Role
	Resource   string
	EntityID   string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Route      string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedPrefixes are the surfaces that read or write patient data,
// clinician credentials or account listings.
var auditedPrefixes = []string{"/predict", "/appointments", "/verify-doctor", "/users", "/auth/me"}

// Audit logs every access to an audited surface after the handler ran, so
// the entry carries the resolved caller and the final status. A recorder,
// when given, also receives the entry; its failure never fails the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				Role:       auth.RoleFromContext(req.Context()),
				Resource:   resourceOf(path),
				EntityID:   entityOf(path),
				Action:     actionOf(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Route:      c.Path(),
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  requestID(c),
				StatusCode: status,
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", string(entry.Role)).
				Str("resource", entry.Resource).
				Str("entity_id", entry.EntityID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("data_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceOf returns the first path segment: /appointments/x -> appointments.
func resourceOf(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if seg == "" {
		return "unknown"
	}
	return seg
}

// entityOf returns the first UUID segment of the path, if any.
func entityOf(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if _, err := uuid.Parse(seg); err == nil && seg != "" {
			return seg
		}
	}
	return ""
}
