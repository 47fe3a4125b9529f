package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfig_Defaults(t *testing.T) {
	tp := NewProvider(Config{})
	if tp.cfg.Namespace != "triage" {
		t.Fatalf("expected default namespace 'triage', got %q", tp.cfg.Namespace)
	}
	if !tp.cfg.metricsOn() {
		t.Fatal("expected metrics on by default")
	}
}

func TestNilProvider_IsSafe(t *testing.T) {
	var tp *Provider
	tp.ObserveInference("ok", time.Millisecond)
	tp.RecordTransition("pending", "confirmed")
	tp.RecordDenial("unauthenticated")
	tp.RecordAssessment("High")
	tp.SetDBPool(1, 2)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := tp.MetricsMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDomainCounters(t *testing.T) {
	tp := NewProvider(Config{})
	tp.ObserveInference("ok", 10*time.Millisecond)
	tp.ObserveInference("ok", 20*time.Millisecond)
	tp.ObserveInference("unavailable", time.Second)
	tp.RecordTransition("pending", "confirmed")
	tp.RecordDenial("role_mismatch")
	tp.RecordAssessment("Medium")

	if got := testutil.ToFloat64(tp.inferenceCalls.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok inference calls, got %v", got)
	}
	if got := testutil.ToFloat64(tp.inferenceCalls.WithLabelValues("unavailable")); got != 1 {
		t.Errorf("expected 1 unavailable call, got %v", got)
	}
	if got := testutil.ToFloat64(tp.transitions.WithLabelValues("pending", "confirmed")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(tp.accessDenials.WithLabelValues("role_mismatch")); got != 1 {
		t.Errorf("expected 1 denial, got %v", got)
	}
	if got := testutil.ToFloat64(tp.assessments.WithLabelValues("Medium")); got != 1 {
		t.Errorf("expected 1 assessment, got %v", got)
	}
}

func TestMetricsMiddleware_RecordsRoute(t *testing.T) {
	tp := NewProvider(Config{})
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/appointments/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	for _, path := range []string{"/appointments/1", "/appointments/2", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := testutil.CollectAndCount(tp.requestDuration); n != 2 {
		t.Fatalf("expected 2 label sets, got %d", n)
	}
	if got := testutil.ToFloat64(tp.activeRequests); got != 0 {
		t.Errorf("expected no active requests after completion, got %v", got)
	}
}

func TestMetricsMiddleware_ErrorStatusRecorded(t *testing.T) {
	tp := NewProvider(Config{})
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/fail", func(c echo.Context) error {
		return errors.New("kaboom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	body := scrape(t, tp)
	if !strings.Contains(body, `triage_http_request_duration_seconds_count{method="GET",route="/fail",status="500"} 2`) {
		t.Errorf("expected 500 status label in output:\n%s", body)
	}
}

func TestMetricsMiddleware_Disabled(t *testing.T) {
	tp := NewProvider(Config{MetricsEnabled: BoolPtr(false)})
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if n := testutil.CollectAndCount(tp.requestDuration); n != 0 {
		t.Errorf("expected nothing recorded when disabled, got %d", n)
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	tp := NewProvider(Config{})
	tp.SetDBPool(3, 7)
	tp.RecordTransition("confirmed", "completed")

	body := scrape(t, tp)
	for _, want := range []string{
		"# TYPE triage_appointment_transitions_total counter",
		`triage_appointment_transitions_total{from="confirmed",to="completed"} 1`,
		"triage_db_pool_active_connections 3",
		"triage_db_pool_idle_connections 7",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func scrape(t *testing.T, tp *Provider) string {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := tp.PrometheusHandler()(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}
