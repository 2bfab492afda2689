package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Observe ObserveConfig
	Server  ServerConfig
	Store   StoreConfig
	Wiki    WikiConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// WikiConfig locates the wiki API.
type WikiConfig struct {
	// APIURL is the absolute base URL the API paths are resolved against,
	// e.g. https://smeagol.example.com/api/v1.
	APIURL string `env:"WIKI_API_URL, required"`

	// LoginPath is where an expired session is sent to authenticate again.
	LoginPath string `env:"WIKI_LOGIN_PATH, default=/api/v1/authc"`
}

// StoreConfig tunes the resource stores.
type StoreConfig struct {
	StaleThresholdMillis int `env:"STORE_STALE_THRESHOLD_MS, default=10000"`
	MaximumSize          int `env:"STORE_MAXIMUM_SIZE, default=10000"`

	// FetchTimeoutSeconds bounds each fetch. Zero disables the bound.
	FetchTimeoutSeconds int `env:"STORE_FETCH_TIMEOUT_SECS, default=0"`

	// PrefetchConcurrency limits the fetches a single prefetch runs at once.
	PrefetchConcurrency int `env:"STORE_PREFETCH_CONCURRENCY, default=4"`
}

func (c StoreConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMillis) * time.Millisecond
}

func (c StoreConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=smeagol-client"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Wiki.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid wiki configuration: %w", err)
	}

	err = cfg.Store.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid store configuration: %w", err)
	}

	err = cfg.Observe.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid observe configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the API URL is absolute and the login path rooted.
func (c *WikiConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("WIKI_API_URL is not a URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("WIKI_API_URL must be absolute, got %q", c.APIURL)
	}

	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("WIKI_LOGIN_PATH must start with /, got %q", c.LoginPath)
	}

	return nil
}

// Validate checks the store sizing and timing settings.
func (c *StoreConfig) Validate() error {
	if c.StaleThresholdMillis <= 0 {
		return fmt.Errorf("STORE_STALE_THRESHOLD_MS must be positive")
	}
	if c.MaximumSize <= 0 {
		return fmt.Errorf("STORE_MAXIMUM_SIZE must be positive")
	}
	if c.FetchTimeoutSeconds < 0 {
		return fmt.Errorf("STORE_FETCH_TIMEOUT_SECS must not be negative")
	}
	if c.PrefetchConcurrency <= 0 {
		return fmt.Errorf("STORE_PREFETCH_CONCURRENCY must be positive")
	}

	return nil
}

// Validate checks the exporter type.
func (c *ObserveConfig) Validate() error {
	switch c.Type {
	case "grpc", "stdout":
		return nil
	default:
		return fmt.Errorf("OBSERVE_TYPE must be grpc or stdout, got %q", c.Type)
	}
}
