// Package config loads curve-lp-lab settings from a YAML file, CURVELP_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"curve-lp-lab/internal/curve"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Storage backends.
const (
	BackendParquet    = "parquet"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Resolver kinds.
const (
	ResolverSubgraph = "subgraph"
	ResolverRPC      = "rpc"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Pools     PoolsConfig     `mapstructure:"pools"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Collector CollectorConfig `mapstructure:"collector"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// RPCConfig holds the Ethereum JSON-RPC connection settings.
type RPCConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	WSEndpoint string        `mapstructure:"ws_endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// RegistryConfig selects pools from the on-chain registry.
type RegistryConfig struct {
	Address string   `mapstructure:"address"`
	Workers int      `mapstructure:"workers"`
	Include []string `mapstructure:"include"`
}

// PoolsConfig lists pools explicitly. When File or Static is set the
// registry is not consulted.
type PoolsConfig struct {
	File   string            `mapstructure:"file"`
	Static []curve.PoolEntry `mapstructure:"static"`
}

// ResolverConfig selects how dates become block numbers.
type ResolverConfig struct {
	Kind        string        `mapstructure:"kind"`
	SubgraphURL string        `mapstructure:"subgraph_url"`
	RedisURL    string        `mapstructure:"redis_url"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig selects the result store.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	DataDir       string `mapstructure:"data_dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	// Migrate applies embedded schema migrations on connect.
	Migrate bool `mapstructure:"migrate"`
}

// CollectorConfig tunes the collection loop.
type CollectorConfig struct {
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	ProgressEvery int           `mapstructure:"progress_every"`
}

// MetricsConfig holds the Prometheus endpoint settings. Empty Addr disables it.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// ScheduleConfig drives the rolling collection job.
type ScheduleConfig struct {
	Cron   string        `mapstructure:"cron"`
	Window time.Duration `mapstructure:"window"`
	// Lag keeps the window end behind the chain head so the end date resolves.
	Lag        time.Duration `mapstructure:"lag"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Filename   string        `mapstructure:"filename"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// Validate checks settings shared by all commands.
func (c *Config) Validate() error {
	var errs []error

	if c.RPC.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("rpc.timeout must be positive, got %v", c.RPC.Timeout))
	}
	if c.RPC.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("rpc.max_retries must be >= 0, got %d", c.RPC.MaxRetries))
	}

	if c.Registry.Address != "" && !common.IsHexAddress(c.Registry.Address) {
		errs = append(errs, fmt.Errorf("registry.address %q is not an address", c.Registry.Address))
	}
	if c.Registry.Workers <= 0 {
		errs = append(errs, fmt.Errorf("registry.workers must be positive, got %d", c.Registry.Workers))
	}

	switch c.Resolver.Kind {
	case ResolverSubgraph, ResolverRPC:
	default:
		errs = append(errs, fmt.Errorf("resolver.kind %q: want %s or %s", c.Resolver.Kind, ResolverSubgraph, ResolverRPC))
	}

	switch c.Storage.Backend {
	case BackendParquet, BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	case BackendClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required for the clickhouse backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not supported", c.Log.Level))
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.encoding %q: want json or console", c.Log.Encoding))
	}

	if c.Schedule.Window <= 0 {
		errs = append(errs, fmt.Errorf("schedule.window must be positive, got %v", c.Schedule.Window))
	}
	if c.Schedule.Lag < 0 {
		errs = append(errs, fmt.Errorf("schedule.lag must not be negative, got %v", c.Schedule.Lag))
	}
	if c.Schedule.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("schedule.timeout must be positive, got %v", c.Schedule.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RequireRPC reports an error when no JSON-RPC endpoint is configured.
func (c *Config) RequireRPC() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("%w: rpc.endpoint is required", ErrInvalidConfig)
	}
	return nil
}

// StaticPools reports whether pools are listed explicitly.
func (c *Config) StaticPools() bool {
	return c.Pools.File != "" || len(c.Pools.Static) > 0
}

// DataPath joins a relative file name onto the data directory.
func (s StorageConfig) DataPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

// Dataset returns the dataset name for a file name: its base without extension.
// Database backends key result tables by it.
func Dataset(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
