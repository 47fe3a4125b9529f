package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cancelled := make(chan struct{})
	h := RequestTimeout(50 * time.Millisecond)(func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-c.Request().Context().Done():
			close(cancelled)
			return c.Request().Context().Err()
		}
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Message == "" {
		t.Errorf("unexpected body: %+v", body)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("expected the handler context to be cancelled")
	}
}

func TestRequestTimeout_ZeroDisables(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequestTimeout(0)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline when the timeout is disabled")
		}
		return nil
	})
	h(c)
}

func TestRequestTimeout_ContextHasDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/appointments/mine", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequestTimeout(30 * time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected context to have a deadline")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/appointments/123", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	want := errors.New("boom")
	h := RequestTimeout(5 * time.Second)(func(c echo.Context) error { return want })
	if err := h(c); !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}
