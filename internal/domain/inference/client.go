package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/careportal/triage/internal/domain/assessment"
	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/telemetry"
)

const (
	// DefaultTimeout bounds a single engine call.
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// ClientConfig configures the HTTP engine client.
type ClientConfig struct {
	// URL is the engine's predict endpoint.
	URL     string
	Timeout time.Duration
	// HTTPClient is optional; its own Timeout is ignored in favour of Timeout.
	HTTPClient *http.Client
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	// BreakerInterval is the closed-state window over which failures count.
	BreakerInterval time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 60 * time.Second
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = 30 * time.Second
	}
}

// Client calls the scoring engine over HTTP. Each Infer is a single attempt
// bounded by the configured timeout; repeated failures open a circuit
// breaker that fails fast until the engine recovers.
type Client struct {
	cfg     ClientConfig
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	metrics *telemetry.Provider
}

// NewClient builds a Client. metrics may be nil.
func NewClient(cfg ClientConfig, logger zerolog.Logger, metrics *telemetry.Provider) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:     cfg,
		logger:  logger.With().Str("component", "inference").Logger(),
		metrics: metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scoring-engine",
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// A caller walking away says nothing about engine health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return c
}

// BreakerState reports the breaker's current state: closed, half-open or
// open.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Infer sends vec to the engine and returns its verdict. Failures are either
// apperr.ErrServiceUnavailable (engine unreachable, slow, open breaker or
// non-2xx) or apperr.ErrInvalidResponse (reply did not match the contract).
func (c *Client) Infer(ctx context.Context, vec assessment.FeatureVector) (*Result, error) {
	const op = "inference.infer"
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, vec)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apperr.ServiceUnavailable(op, "scoring engine temporarily unavailable", err)
	}

	outcome := "ok"
	switch {
	case errors.Is(err, apperr.ErrInvalidResponse):
		outcome = "invalid_response"
	case err != nil:
		outcome = "unavailable"
	}
	c.metrics.ObserveInference(outcome, time.Since(start))

	if err != nil {
		c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scoring engine call failed")
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) call(ctx context.Context, vec assessment.FeatureVector) (*Result, error) {
	const op = "inference.infer"

	payload, err := json.Marshal(vec)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.ServiceUnavailable(op,
				fmt.Sprintf("scoring engine did not respond within %s", c.cfg.Timeout), err)
		}
		return nil, apperr.ServiceUnavailable(op, "scoring engine unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.ServiceUnavailable(op, "reading scoring engine response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("scoring engine returned status %d", resp.StatusCode)
		if engineMsg := engineError(body); engineMsg != "" {
			msg = engineMsg
		}
		return nil, apperr.ServiceUnavailable(op, msg, nil)
	}

	if err := validateResponse(body); err != nil {
		return nil, apperr.InvalidResponse(op, "malformed scoring engine response", err)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperr.InvalidResponse(op, "malformed scoring engine response", err)
	}
	if wire.Success != nil && !*wire.Success {
		msg := strings.TrimSpace(wire.Error)
		if msg == "" {
			msg = "scoring engine reported failure"
		}
		return nil, apperr.ServiceUnavailable(op, msg, nil)
	}
	return wire.toResult(), nil
}

// engineError extracts the engine's "error" field from a failure body.
func engineError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return strings.TrimSpace(e.Error)
}
