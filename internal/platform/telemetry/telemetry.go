// Package telemetry exposes Prometheus metrics for the triage service: HTTP
// server metrics recorded by middleware, plus domain counters for engine
// calls, appointment transitions and access denials.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds telemetry configuration.
type Config struct {
	Namespace string
	// MetricsEnabled turns the HTTP middleware off when false; domain
	// counters are always recorded.
	MetricsEnabled *bool
}

func (c *Config) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "triage"
	}
}

// BoolPtr is a helper for optional config fields.
func BoolPtr(b bool) *bool {
	return &b
}

var defaultDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Provider owns a private registry and every collector registered on it.
// All recording methods are safe on a nil *Provider.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	responseSize    prometheus.Histogram

	inferenceCalls    *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	transitions       *prometheus.CounterVec
	accessDenials     *prometheus.CounterVec
	assessments       *prometheus.CounterVec

	dbPoolActive prometheus.Gauge
	dbPoolIdle   prometheus.Gauge
}

// NewProvider builds a Provider with its own registry, so independent
// providers never collide.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	ns := cfg.Namespace

	return &Provider{
		cfg:      cfg,
		registry: reg,
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "route", "status"}),
		activeRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests.",
		}),
		responseSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_response_size_bytes",
			Help:      "Size of HTTP response bodies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		inferenceCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "inference_calls_total",
			Help:      "Scoring engine calls by outcome.",
		}, []string{"outcome"}),
		inferenceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "inference_duration_seconds",
			Help:      "Latency of scoring engine calls.",
			Buckets:   defaultDurationBuckets,
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by source and target status.",
		}, []string{"from", "to"}),
		accessDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "access_denials_total",
			Help:      "Requests rejected by the access guard, by reason.",
		}, []string{"reason"}),
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "assessments_total",
			Help:      "Completed risk assessments by level.",
		}, []string{"level"}),
		dbPoolActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_active_connections",
			Help:      "Number of acquired database pool connections.",
		}),
		dbPoolIdle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_idle_connections",
			Help:      "Number of idle database pool connections.",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// ObserveInference records one engine call. outcome is "ok",
// "unavailable" or "invalid_response".
func (p *Provider) ObserveInference(outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.inferenceCalls.WithLabelValues(outcome).Inc()
	p.inferenceDuration.Observe(elapsed.Seconds())
}

// RecordTransition counts an applied appointment status change.
func (p *Provider) RecordTransition(from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
}

// RecordDenial counts a request rejected by the access guard.
func (p *Provider) RecordDenial(reason string) {
	if p == nil {
		return
	}
	p.accessDenials.WithLabelValues(reason).Inc()
}

// RecordAssessment counts a classified assessment.
func (p *Provider) RecordAssessment(level string) {
	if p == nil {
		return
	}
	p.assessments.WithLabelValues(level).Inc()
}

// SetDBPool publishes connection pool occupancy.
func (p *Provider) SetDBPool(active, idle int32) {
	if p == nil {
		return
	}
	p.dbPoolActive.Set(float64(active))
	p.dbPoolIdle.Set(float64(idle))
}

// MetricsMiddleware returns an Echo middleware that records HTTP server
// metrics labelled by route pattern.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p == nil || !p.cfg.metricsOn() {
				return next(c)
			}

			p.activeRequests.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler settle the status before we read it.
				c.Error(err)
				err = nil
			}

			p.activeRequests.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			resp := c.Response()
			p.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(resp.Status)).
				Observe(time.Since(start).Seconds())
			if resp.Size > 0 {
				p.responseSize.Observe(float64(resp.Size))
			}
			return err
		}
	}
}

// PrometheusHandler serves the registry in Prometheus exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
