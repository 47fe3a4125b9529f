package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/config"
	"github.com/careportal/triage/internal/domain/account"
	"github.com/careportal/triage/internal/domain/appointment"
	"github.com/careportal/triage/internal/domain/inference"
	"github.com/careportal/triage/internal/domain/reporting"
	"github.com/careportal/triage/internal/domain/triage"
	"github.com/careportal/triage/internal/platform/auth"
	"github.com/careportal/triage/internal/platform/blobstore"
	"github.com/careportal/triage/internal/platform/db"
	"github.com/careportal/triage/internal/platform/middleware"
	"github.com/careportal/triage/internal/platform/telemetry"
)

// application holds the wired services the router mounts.
type application struct {
	cfg          *config.Config
	logger       zerolog.Logger
	metrics      *telemetry.Provider
	guard        *auth.Guard
	accounts     *account.Service
	appointments *appointment.Service
	triage       *triage.Service
	reports      reporting.Querier
	dbHealth     echo.HandlerFunc
	// breaker reports the scoring engine circuit state; nil omits it.
	breaker      func() string
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "triage").Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func (a *application) router() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, triage.HeaderSubmissionID},
		ExposeHeaders: []string{middleware.RequestIDHeader, echo.HeaderLocation},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(a.metrics.MetricsMiddleware())
	e.Use(middleware.Audit(a.logger, nil))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", a.health)
	if a.dbHealth != nil {
		e.GET("/health/db", a.dbHealth)
	}
	e.GET("/internal/metrics", a.metrics.PrometheusHandler())

	root := e.Group("")
	account.NewHandler(a.accounts, a.guard).RegisterRoutes(root)
	triage.NewHandler(a.triage, a.guard, a.logger).RegisterRoutes(root, a.accounts,
		middleware.UserRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.PredictRPS,
			BurstSize:         cfg.PredictBurst,
		}))
	appointment.NewHandler(a.appointments, a.guard).RegisterRoutes(root, a.accounts)
	reporting.NewHandler(a.reports, a.guard).RegisterRoutes(root)

	return e
}

// health stays 200 while the engine breaker is open so the process is not
// restarted for a downstream outage; the state is reported for operators.
func (a *application) health(c echo.Context) error {
	body := map[string]string{"status": "ok"}
	if a.breaker != nil {
		body["inference_breaker"] = a.breaker()
	}
	return c.JSON(http.StatusOK, body)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewProvider(telemetry.Config{})

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{SigningKey: []byte(cfg.JWTSecret), TTL: cfg.TokenTTL})
	if err != nil {
		return err
	}

	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("session revocations in redis")
	} else {
		mem := auth.NewMemoryRevocationStore(time.Minute)
		defer mem.Close()
		revocations = mem
	}

	var blobs blobstore.BlobStore
	if cfg.BlobDir != "" {
		disk, err := blobstore.NewDiskBlobStore(cfg.BlobDir)
		if err != nil {
			return err
		}
		blobs = disk
	} else {
		blobs = blobstore.NewInMemoryBlobStore()
	}

	accounts := account.NewService(account.NewRepoPG(pool), blobs,
		func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		}, logger, account.WithAdminInviteCode(cfg.AdminInviteCode))

	engine := inference.NewClient(inference.ClientConfig{
		URL:     cfg.InferenceURL,
		Timeout: cfg.InferenceTimeout,
	}, logger, metrics)

	app := &application{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		guard:        auth.NewGuard(tokens, revocations, logger, metrics),
		accounts:     accounts,
		appointments: appointment.NewService(appointment.NewRepoPG(pool), accounts, logger, metrics),
		triage:       triage.NewService(engine, logger, metrics),
		reports:      pool,
		dbHealth:     db.HealthHandler(pool, metrics),
		breaker:      engine.BreakerState,
	}
	e := app.router()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
