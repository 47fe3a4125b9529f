// Package apperr defines the error taxonomy shared by the triage domains.
// Domain services return *Error values; the HTTP layer maps the Kind to a
// status code and renders a uniform JSON body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInvalidResponse    Kind = "invalid_response"
	KindAuth               Kind = "auth"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Op names the operation that failed
// (e.g. "appointment.transition"), Entity the record id when one applies.
type Error struct {
	Kind     Kind
	Op       string
	Entity   string
	Message  string
	Redirect string
	// Forbidden distinguishes an authenticated caller without permission (403)
	// from a missing or invalid session (401). Only meaningful for KindAuth.
	Forbidden bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that errors.Is(err, apperr.ErrNotFound) works for any
// NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrInvalidResponse    = &Error{Kind: KindInvalidResponse}
	ErrAuth               = &Error{Kind: KindAuth}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrConflict           = &Error{Kind: KindConflict}
)

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func ServiceUnavailable(op, message string, err error) *Error {
	return &Error{Kind: KindServiceUnavailable, Op: op, Message: message, Err: err}
}

func InvalidResponse(op, message string, err error) *Error {
	return &Error{Kind: KindInvalidResponse, Op: op, Message: message, Err: err}
}

// Unauthenticated is a missing, malformed, expired or revoked session.
func Unauthenticated(op, message, redirect string) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message, Redirect: redirect}
}

// Forbidden is an authenticated caller acting outside its role.
func Forbidden(op, message, redirect string) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message, Redirect: redirect, Forbidden: true}
}

func NotFound(op, entity string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, Message: "record not found"}
}

func InvalidTransition(op, entity, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Op:      op,
		Entity:  entity,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func Conflict(op, entity, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Entity: entity, Message: message}
}

func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidResponse:
		return http.StatusBadGateway
	case KindAuth:
		if e.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to callers. Internal errors
// never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// RedirectOf returns the reroute target carried by an auth error, if any.
func RedirectOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Redirect
	}
	return ""
}
