package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/auth"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limited(cfg RateLimitConfig) (echo.HandlerFunc, *limiterStore, *clock) {
	return limitedBy(cfg, addressKey)
}

func limitedBy(cfg RateLimitConfig, keyOf keyFunc) (echo.HandlerFunc, *limiterStore, *clock) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newLimiterStore(cfg)
	store.now = clk.now
	h := rateLimit(store, keyOf)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return h, store, clk
}

func hit(h echo.HandlerFunc, ip, userID string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/appointments/mine", nil)
	req.RemoteAddr = ip + ":5555"
	if userID != "" {
		req = req.WithContext(auth.WithSession(req.Context(), &auth.Session{UserID: userID, Role: auth.RolePatient}))
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func statusCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h, _, _ := limited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	for i := 0; i < 5; i++ {
		rec, err := hit(h, "10.0.0.1", "")
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	h, _, _ := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	for i := 0; i < 2; i++ {
		if _, err := hit(h, "10.0.0.1", ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	rec, err := hit(h, "10.0.0.1", "")
	if statusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, perr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if perr != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	h, _, clk := limited(RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1})
	if _, err := hit(h, "10.0.0.1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := hit(h, "10.0.0.1", ""); statusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before refill, got %v", err)
	}
	clk.advance(600 * time.Millisecond)
	if _, err := hit(h, "10.0.0.1", ""); err != nil {
		t.Errorf("expected a token after refill, got %v", err)
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	h, _, _ := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hit(h, "10.0.0.1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := hit(h, "10.0.0.1", ""); statusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected second anonymous request to be limited, got %v", err)
	}
	if _, err := hit(h, "10.0.0.2", ""); err != nil {
		t.Errorf("other address should have its own bucket: %v", err)
	}
	// The global limiter ignores any session and keys by address only.
	if _, err := hit(h, "10.0.0.1", "patient-1"); statusCode(err) != http.StatusTooManyRequests {
		t.Errorf("address bucket should apply to signed-in callers too, got %v", err)
	}
}

func TestUserRateLimit_KeysByAccount(t *testing.T) {
	h, _, _ := limitedBy(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, accountKey)

	if _, err := hit(h, "10.0.0.1", "patient-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := hit(h, "10.0.0.9", "patient-1"); statusCode(err) != http.StatusTooManyRequests {
		t.Errorf("account bucket should follow the caller across addresses, got %v", err)
	}
	if _, err := hit(h, "10.0.0.1", "patient-2"); err != nil {
		t.Errorf("another account behind the same address should have its own bucket: %v", err)
	}
	if _, err := hit(h, "10.0.0.1", ""); err != nil {
		t.Errorf("a request without a session should fall back to its address bucket: %v", err)
	}
}

func TestUserRateLimit_MountedAfterAuthenticate(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{SigningKey: []byte("rate-limit-test-signing-key-0001")})
	if err != nil {
		t.Fatal(err)
	}
	revoked := auth.NewMemoryRevocationStore(0)
	defer revoked.Close()
	guard := auth.NewGuard(tokens, revoked, zerolog.Nop(), nil)
	e := echo.New()
	g := e.Group("/predict", guard.Authenticate(), UserRateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}))
	g.POST("", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	token, _, err := tokens.Issue("patient-7", auth.RolePatient)
	if err != nil {
		t.Fatal(err)
	}
	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/predict", nil)
		req.RemoteAddr = ip + ":5555"
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("first request: expected 204, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("same account from a new address: expected 429, got %d", code)
	}
}

func TestRateLimit_ZeroRateDisables(t *testing.T) {
	h, store, _ := limited(RateLimitConfig{})
	for i := 0; i < 50; i++ {
		if _, err := hit(h, "10.0.0.1", ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	if store.size() != 0 {
		t.Errorf("disabled limiter should track nobody, got %d", store.size())
	}
}

func TestRateLimit_EvictsIdleClients(t *testing.T) {
	h, store, clk := limited(RateLimitConfig{RequestsPerSecond: 5, BurstSize: 5, IdleTTL: time.Minute})
	hit(h, "10.0.0.1", "")
	hit(h, "10.0.0.2", "")
	if store.size() != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", store.size())
	}
	clk.advance(2 * time.Minute)
	hit(h, "10.0.0.3", "")
	if store.size() != 1 {
		t.Errorf("expected idle clients evicted, got %d", store.size())
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 20 || cfg.BurstSize != 40 || cfg.IdleTTL != 10*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
