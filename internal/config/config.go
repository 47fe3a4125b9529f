// Package config loads server settings from .env and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretBytes is the shortest JWT_SECRET accepted outside development.
const MinSecretBytes = 32

// devSecret signs tokens in development when JWT_SECRET is unset.
const devSecret = "development-only-signing-key-do-not-deploy"

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	AdminInviteCode  string        `mapstructure:"ADMIN_INVITE_CODE"`
	TokenTTL         time.Duration `mapstructure:"TOKEN_TTL"`
	InferenceURL     string        `mapstructure:"INFERENCE_URL"`
	InferenceTimeout time.Duration `mapstructure:"INFERENCE_TIMEOUT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	PredictRPS       float64       `mapstructure:"PREDICT_RATE_LIMIT_RPS"`
	PredictBurst     int           `mapstructure:"PREDICT_RATE_LIMIT_BURST"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	UploadLimit      string        `mapstructure:"UPLOAD_LIMIT"`
	BlobDir          string        `mapstructure:"BLOB_DIR"`
	TLSEnabled       bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile      string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile       string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "JWT_SECRET", "TOKEN_TTL", "ADMIN_INVITE_CODE",
	"INFERENCE_URL", "INFERENCE_TIMEOUT", "REQUEST_TIMEOUT",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PREDICT_RATE_LIMIT_RPS", "PREDICT_RATE_LIMIT_BURST",
	"BODY_LIMIT", "UPLOAD_LIMIT", "BLOB_DIR",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env (if present) overlaid by the environment. It does not
// validate; call Validate before serving.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("INFERENCE_URL", "http://localhost:5000/api/predict")
	v.SetDefault("INFERENCE_TIMEOUT", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("PREDICT_RATE_LIMIT_RPS", 1)
	v.SetDefault("PREDICT_RATE_LIMIT_BURST", 5)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "12M")

	// Bind explicitly so Unmarshal sees variables that have no default.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devSecret
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Warnings lists settings that are acceptable but unsafe to deploy.
func (c *Config) Warnings() []string {
	var w []string
	if c.JWTSecret == devSecret {
		w = append(w, "JWT_SECRET is unset; using the built-in development signing key")
	}
	if c.RedisURL == "" {
		w = append(w, "REDIS_URL is unset; session revocations are kept in memory and lost on restart")
	}
	if c.BlobDir == "" {
		w = append(w, "BLOB_DIR is unset; verification documents are kept in memory and lost on restart")
	}
	return w
}

// Validate checks that the configuration is safe to serve with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && len(c.JWTSecret) < MinSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinSecretBytes, len(c.JWTSecret))
	}
	if !c.IsDev() && c.JWTSecret == devSecret {
		return fmt.Errorf("JWT_SECRET must be set when ENV=%q", c.Env)
	}
	if c.InferenceURL == "" {
		return fmt.Errorf("INFERENCE_URL is required")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.PredictRPS < 0 {
		return fmt.Errorf("PREDICT_RATE_LIMIT_RPS must not be negative")
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
