package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/careportal/triage/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused per-client limiter is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      RateLimitConfig
	now      func() time.Time
	lastScan time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{visitors: make(map[string]*visitor), cfg: cfg, now: time.Now}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastScan) > s.cfg.IdleTTL {
		for k, v := range s.visitors {
			if now.Sub(v.lastSeen) > s.cfg.IdleTTL {
				delete(s.visitors, k)
			}
		}
		s.lastScan = now
	}

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// keyFunc names the bucket a request draws from.
type keyFunc func(c echo.Context) string

func addressKey(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// accountKey falls back to the address when no session is on the context.
func accountKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return addressKey(c)
}

// RateLimit throttles each client address with a token bucket. It runs
// ahead of authentication. A zero rate disables the limiter.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiterStore(cfg), addressKey)
}

// UserRateLimit throttles each signed-in account, wherever it connects from.
// Mount it after Authenticate.
func UserRateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiterStore(cfg), accountKey)
}

func rateLimit(store *limiterStore, keyOf keyFunc) echo.MiddlewareFunc {
	cfg := store.cfg
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.RequestsPerSecond <= 0 {
				return next(c)
			}

			res := store.get(keyOf(c)).ReserveN(store.now(), 1)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			if delay := res.DelayFrom(store.now()); !res.OK() || delay > 0 {
				res.CancelAt(store.now())
				retry := 1
				if res.OK() {
					retry = int(math.Ceil(delay.Seconds()))
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
