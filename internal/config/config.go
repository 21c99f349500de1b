// Package config loads entitystore settings from YAML with environment
// overrides layered on top.
package config

import (
	"context"
	"entitystore/internal/core"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvStorageDriver     = "ENTITYSTORE_STORAGE_DRIVER"
	EnvSQLiteDSN         = "ENTITYSTORE_SQLITE_DSN"
	EnvRetryAttempts     = "ENTITYSTORE_RETRY_ATTEMPTS"
	EnvRetryInitialDelay = "ENTITYSTORE_RETRY_INITIAL_DELAY"
	EnvLogLevel          = "ENTITYSTORE_LOG_LEVEL"
	EnvLogFormat         = "ENTITYSTORE_LOG_FORMAT"
	EnvLogBackend        = "ENTITYSTORE_LOG_BACKEND"
	EnvTracingBackend    = "ENTITYSTORE_TRACING_BACKEND"
	EnvMetricsBackend    = "ENTITYSTORE_METRICS_BACKEND"
)

// Tracing and metrics backends.
const (
	TracingNone       = "none"
	TracingJSON       = "json"
	TracingOTel       = "otel"
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// StorageConfig selects the volatile backend.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// RetryConfig bounds mutation retries.
type RetryConfig struct {
	Attempts     int    `yaml:"attempts"`
	InitialDelay string `yaml:"initial_delay"`
}

// LoggingConfig selects the logger. Format applies to the slog backend; zap
// always writes JSON.
type LoggingConfig struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// TracingConfig selects where operation spans go: nowhere, JSON lines from
// the built-in tracer, or JSON lines exported by an OpenTelemetry SDK
// provider.
type TracingConfig struct {
	Backend string `yaml:"backend"`
}

// MetricsConfig selects the metrics recorder.
type MetricsConfig struct {
	Backend string `yaml:"backend"`
}

// Config is the full entitystore configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: string(core.StorageMemory)},
		Retry: RetryConfig{
			Attempts:     core.DefaultRetryAttempts,
			InitialDelay: core.DefaultRetryInitialDelay.String(),
		},
		Logging: LoggingConfig{Backend: "slog", Level: "info", Format: "text"},
		Tracing: TracingConfig{Backend: TracingNone},
		Metrics: MetricsConfig{Backend: MetricsPrometheus},
	}
}

// Load reads YAML from r over the defaults. A nil or empty reader yields
// the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadFile reads path, applies environment overrides and validates. An empty
// path or a missing file yields the defaults plus overrides.
func LoadFile(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = Default()
		case err != nil:
			return nil, fmt.Errorf("open config %s: %w", path, err)
		default:
			defer f.Close()
			if cfg, err = Load(f); err != nil {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays values found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvStorageDriver); ok {
		c.Storage.Driver = v
	}
	if v, ok := lookup(EnvSQLiteDSN); ok {
		c.Storage.SQLiteDSN = v
	}
	if v, ok := lookup(EnvRetryAttempts); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryAttempts, err)
		}
		c.Retry.Attempts = n
	}
	if v, ok := lookup(EnvRetryInitialDelay); ok {
		c.Retry.InitialDelay = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.Logging.Format = v
	}
	if v, ok := lookup(EnvLogBackend); ok {
		c.Logging.Backend = v
	}
	if v, ok := lookup(EnvTracingBackend); ok {
		c.Tracing.Backend = v
	}
	if v, ok := lookup(EnvMetricsBackend); ok {
		c.Metrics.Backend = v
	}
	return nil
}

// Validate rejects values the store cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseStorageDriver(c.Storage.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.Attempts < 1 || c.Retry.Attempts > core.MaxRetryAttempts {
		errs = append(errs, fmt.Errorf("retry attempts must be between 1 and %d, got %d", core.MaxRetryAttempts, c.Retry.Attempts))
	}
	if _, err := c.initialDelay(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			errs = append(errs, fmt.Errorf("log level %q: %w", c.Logging.Level, err))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Logging.Backend) {
	case "", "slog", "zap":
	default:
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.Logging.Backend))
	}
	switch strings.ToLower(c.Tracing.Backend) {
	case "", TracingNone, TracingJSON, TracingOTel:
	default:
		errs = append(errs, fmt.Errorf("unknown tracing backend %q", c.Tracing.Backend))
	}
	switch strings.ToLower(c.Metrics.Backend) {
	case "", MetricsPrometheus, MetricsExpvar:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Metrics.Backend))
	}
	return errors.Join(errs...)
}

func (c *Config) initialDelay() (time.Duration, error) {
	if c.Retry.InitialDelay == "" {
		return core.DefaultRetryInitialDelay, nil
	}
	d, err := time.ParseDuration(c.Retry.InitialDelay)
	if err != nil {
		return 0, fmt.Errorf("retry initial delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retry initial delay must not be negative, got %s", d)
	}
	return d, nil
}

// RetryPolicy converts the retry section. Call Validate first.
func (c *Config) RetryPolicy() core.RetryPolicy {
	d, err := c.initialDelay()
	if err != nil {
		d = core.DefaultRetryInitialDelay
	}
	return core.RetryPolicy{Attempts: c.Retry.Attempts, InitialDelay: d}
}

// StorageDriver returns the parsed driver, memory when invalid.
func (c *Config) StorageDriver() core.StorageDriver {
	d, err := core.ParseStorageDriver(c.Storage.Driver)
	if err != nil {
		return core.StorageMemory
	}
	return d
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (core.Logger, error) {
	if strings.EqualFold(c.Logging.Backend, "zap") {
		l, err := core.NewZapLogger(w, c.Logging.Level)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	l, err := core.NewSlogLogger(w, c.Logging.Level, c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Tracer builds the configured tracer writing spans to w. The returned func
// flushes and releases it; it is never nil. A nil tracer means spans are
// discarded.
func (c *Config) Tracer(w io.Writer) (core.Tracer, func(context.Context) error) {
	switch strings.ToLower(c.Tracing.Backend) {
	case TracingJSON:
		return core.NewJSONTracer(w), func(context.Context) error { return nil }
	case TracingOTel:
		return core.NewOTelLineTracer(w)
	default:
		return nil, func(context.Context) error { return nil }
	}
}

// MetricsRecorder builds the configured recorder. The Prometheus recorder
// registers on reg.
func (c *Config) MetricsRecorder(reg prometheus.Registerer) (core.MetricsRecorder, error) {
	if strings.EqualFold(c.Metrics.Backend, MetricsExpvar) {
		return core.NewExpvarMetricsRecorder(""), nil
	}
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
