// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. QUOTECFG_SERVER_PORT.
const EnvPrefix = "QUOTECFG_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"        envPrefix:"SERVER_"`
	Templates     TemplatesConfig     `yaml:"templates"     envPrefix:"TEMPLATES_"`
	Storage       StorageConfig       `yaml:"storage"       envPrefix:"STORAGE_"`
	Cache         CacheConfig         `yaml:"cache"         envPrefix:"CACHE_"`
	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY_"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"             env:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"     env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"    env:"WRITE_TIMEOUT"`
	HandlerTimeout  time.Duration   `yaml:"handler_timeout"  env:"HANDLER_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"   env:"MAX_BODY_BYTES"`
	CORS            CORSConfig      `yaml:"cors"             envPrefix:"CORS_"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"       envPrefix:"RATE_LIMIT_"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods []string `yaml:"allowed_methods" env:"ALLOWED_METHODS" envSeparator:","`
	AllowedHeaders []string `yaml:"allowed_headers" env:"ALLOWED_HEADERS" envSeparator:","`
	MaxAge         int      `yaml:"max_age"         env:"MAX_AGE"`
}

// RateLimitConfig describes the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"             env:"ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst"               env:"BURST"`
}

// TemplatesConfig describes where calculator templates are loaded from.
type TemplatesConfig struct {
	Directories []string      `yaml:"directories" env:"DIRECTORIES" envSeparator:","`
	HotReload   bool          `yaml:"hot_reload"  env:"HOT_RELOAD"`
	Debounce    time.Duration `yaml:"debounce"    env:"DEBOUNCE"`
}

// StorageConfig describes configuration persistence.
type StorageConfig struct {
	Driver         string        `yaml:"driver"          env:"DRIVER"`
	DSN            string        `yaml:"dsn"             env:"DSN"`
	MaxConns       int32         `yaml:"max_conns"       env:"MAX_CONNS"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	AutoMigrate    bool          `yaml:"auto_migrate"    env:"AUTO_MIGRATE"`
	Breaker        BreakerConfig `yaml:"breaker"         envPrefix:"BREAKER_"`
}

// BreakerConfig describes the circuit breaker in front of the store.
// A zero FailureThreshold disables it.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown"          env:"COOLDOWN"`
}

// CacheConfig describes the evaluation result cache.
type CacheConfig struct {
	Driver     string        `yaml:"driver"      env:"DRIVER"`
	TTL        time.Duration `yaml:"ttl"         env:"TTL"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	RedisAddr  string        `yaml:"redis_addr"  env:"REDIS_ADDR"`
	RedisDB    int           `yaml:"redis_db"    env:"REDIS_DB"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level" env:"LOG_LEVEL"`
	Tracing  TracingConfig `yaml:"tracing"   envPrefix:"TRACING_"`
	Metrics  MetricsConfig `yaml:"metrics"   envPrefix:"METRICS_"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"       env:"ENABLED"`
	Exporter     string  `yaml:"exporter"      env:"EXPORTER"`
	Endpoint     string  `yaml:"endpoint"      env:"ENDPOINT"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path"    env:"PATH"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    4 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "If-Match", "X-Correlation-Id", "X-Actor-Id"},
				MaxAge:         86400,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Templates: TemplatesConfig{
			Debounce: 250 * time.Millisecond,
		},
		Storage: StorageConfig{
			Driver:         "memory",
			MaxConns:       10,
			ConnectTimeout: 30 * time.Second,
			AutoMigrate:    true,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Cooldown:         30 * time.Second,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads an optional YAML config file, applies QUOTECFG_* environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, "server.rate_limit.requests_per_second must be positive")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Sprintf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of memory, sqlite, postgres", c.Storage.Driver))
	}

	if c.Storage.Breaker.FailureThreshold < 0 {
		errs = append(errs, "storage.breaker.failure_threshold must not be negative")
	}

	switch c.Cache.Driver {
	case "none":
	case "memory":
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, "cache.max_entries must be positive")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for driver \"redis\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not one of none, memory, redis", c.Cache.Driver))
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_level %q is not one of debug, info, warn, error", c.Observability.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
