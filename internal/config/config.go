// Package config loads and validates the engine configuration from a
// YAML file. Every duration knob has a default so a minimal file with
// just endpoints and assets is enough to run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coinoracle/pricecore/internal/domain"
	"github.com/coinoracle/pricecore/internal/stream"
)

// Config is the complete engine configuration.
type Config struct {
	Cache   CacheConfig          `yaml:"cache"`
	Oracle  OracleConfig         `yaml:"oracle"`
	REST    RESTConfig           `yaml:"rest"`
	Venues  []stream.VenueConfig `yaml:"venues"`
	Assets  []domain.Asset       `yaml:"assets"`
	Store   StoreConfig          `yaml:"store"`
	Ops     OpsConfig            `yaml:"ops"`

	// MaxRetries is the advisory threshold after which repeated
	// on-chain failures for a symbol are escalated in logs.
	MaxRetries int `yaml:"max_retries"`
}

// CacheConfig controls the price cache validity window.
type CacheConfig struct {
	WindowSec int `yaml:"window_sec"` // default 60
}

// OracleConfig points at the on-chain RPC endpoint and its quota.
type OracleConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	TimeoutSec int    `yaml:"timeout_sec"` // default 10

	// Rate limiting: calls admitted per window, plus burst capacity
	// for the token bucket and a hard per-window budget.
	RateWindowSec int `yaml:"rate_window_sec"` // default 60
	RateCalls     int `yaml:"rate_calls"`      // default 30
	RateBurst     int `yaml:"rate_burst"`      // default 5
	BudgetCalls   int `yaml:"budget_calls"`    // 0 disables the window budget
}

// RESTConfig points at the fallback price API.
type RESTConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"` // default 10
}

// StoreConfig enables the optional persistence backends.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"` // empty disables history
	RedisAddr   string `yaml:"redis_addr"`   // empty disables warm restarts
	RedisTTLSec int    `yaml:"redis_ttl_sec"`
}

// OpsConfig configures the observability listener.
type OpsConfig struct {
	Addr string `yaml:"addr"` // default :9090
}

// Load reads and validates a config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.WindowSec <= 0 {
		c.Cache.WindowSec = 60
	}
	if c.Oracle.TimeoutSec <= 0 {
		c.Oracle.TimeoutSec = 10
	}
	if c.Oracle.RateWindowSec <= 0 {
		c.Oracle.RateWindowSec = 60
	}
	if c.Oracle.RateCalls <= 0 {
		c.Oracle.RateCalls = 30
	}
	if c.Oracle.RateBurst <= 0 {
		c.Oracle.RateBurst = 5
	}
	if c.REST.TimeoutSec <= 0 {
		c.REST.TimeoutSec = 10
	}
	if c.Store.RedisTTLSec <= 0 {
		c.Store.RedisTTLSec = int((24 * time.Hour).Seconds())
	}
	if c.Ops.Addr == "" {
		c.Ops.Addr = ":9090"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	for i, venue := range c.Venues {
		if venue.Name == "" {
			return fmt.Errorf("venue %d: name is required", i)
		}
		if venue.URL == "" {
			return fmt.Errorf("venue %s: url is required", venue.Name)
		}
		if venue.Paths.Symbol == "" || venue.Paths.Price == "" {
			return fmt.Errorf("venue %s: symbol and price paths are required", venue.Name)
		}
	}

	seen := make(map[string]bool, len(c.Assets))
	for _, asset := range c.Assets {
		if seen[asset.Symbol] {
			return fmt.Errorf("asset %s: duplicate symbol", asset.Symbol)
		}
		seen[asset.Symbol] = true
	}
	return nil
}

// CacheWindow returns the validity window as a duration.
func (c *Config) CacheWindow() time.Duration {
	return time.Duration(c.Cache.WindowSec) * time.Second
}

// OracleTimeout returns the on-chain read timeout.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSec) * time.Second
}

// RESTTimeout returns the REST request timeout.
func (c *Config) RESTTimeout() time.Duration {
	return time.Duration(c.REST.TimeoutSec) * time.Second
}

// RateWindow returns the rate-limit window length.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Oracle.RateWindowSec) * time.Second
}

// RedisTTL returns how long persisted last prices stay loadable.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Store.RedisTTLSec) * time.Second
}
