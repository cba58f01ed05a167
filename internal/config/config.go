// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Origin    OriginConfig    `yaml:"origin"`
	Cache     CacheConfig     `yaml:"cache"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// OriginConfig describes the upstream the cache fronts.
type OriginConfig struct {
	URL          string        `yaml:"url"`
	Host         string        `yaml:"host"` // Host header override
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // larger responses are passed through uncached
	DNSCache     bool          `yaml:"dns_cache"`
	DNSRefresh   time.Duration `yaml:"dns_refresh"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the origin circuit breaker.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"` // 0.0 to 1.0
	MinSamples     int           `yaml:"min_samples"`
	Window         time.Duration `yaml:"window"` // at most 60s
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // "lru" or "tinylfu"
	MaxEntries    int           `yaml:"max_entries"`
	Shards        int           `yaml:"shards"`
	MaxTTL        time.Duration `yaml:"max_ttl"`     // 0 = uncapped
	DefaultTTL    time.Duration `yaml:"default_ttl"` // applied when origin sends no freshness info; 0 = don't cache
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	APIKey   string `yaml:"api_key"`   // empty disables the admin API
	PurgeRPM int64  `yaml:"purge_rpm"` // purge requests per minute per client; 0 = unlimited
}

// DatabaseConfig holds SQLite settings for the purge audit log.
type DatabaseConfig struct {
	Enabled   bool          `yaml:"enabled"`
	DSN       string        `yaml:"dsn"`       // file path or ":memory:"
	Retention time.Duration `yaml:"retention"` // purge log age limit; 0 = keep forever
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used for any field the file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Origin: OriginConfig{
			Timeout:      30 * time.Second,
			MaxBodyBytes: 10 << 20,
			DNSRefresh:   5 * time.Minute,
			Breaker: BreakerConfig{
				ErrorThreshold: 0.5,
				MinSamples:     20,
				Window:         30 * time.Second,
				OpenTimeout:    10 * time.Second,
			},
		},
		Cache: CacheConfig{
			Backend:       "lru",
			MaxEntries:    10_000,
			Shards:        16,
			SweepInterval: time.Minute,
		},
		Database: DatabaseConfig{
			DSN:       "edgecache.db",
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Origin.URL == "" {
		errs = append(errs, errors.New("origin.url is required"))
	} else if u, err := url.Parse(c.Origin.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin.url %q must be an absolute URL", c.Origin.URL))
	}
	switch c.Cache.Backend {
	case "lru", "tinylfu":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be lru or tinylfu", c.Cache.Backend))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Cache.DefaultTTL < 0 || c.Cache.MaxTTL < 0 {
		errs = append(errs, errors.New("cache ttls must not be negative"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache.sweep_interval must be positive"))
	}
	if c.Origin.DNSCache && c.Origin.DNSRefresh <= 0 {
		errs = append(errs, errors.New("origin.dns_refresh must be positive when dns_cache is on"))
	}
	if b := c.Origin.Breaker; b.Enabled {
		if b.ErrorThreshold <= 0 || b.ErrorThreshold > 1 {
			errs = append(errs, errors.New("origin.breaker.error_threshold must be in (0, 1]"))
		}
		if b.Window < time.Second || b.Window > time.Minute {
			errs = append(errs, errors.New("origin.breaker.window must be between 1s and 60s"))
		}
	}
	if c.Admin.PurgeRPM < 0 {
		errs = append(errs, errors.New("admin.purge_rpm must not be negative"))
	}
	if c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.tracing.endpoint is required when tracing is enabled"))
	}
	return errors.Join(errs...)
}
