package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"curve-lp-lab/internal/blocks"
	"curve-lp-lab/internal/observability"
)

// configName is the config file name without extension.
const configName = "curvelp"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix.
const envPrefix = "CURVELP"

// Default values.
const (
	DefaultRPCTimeout      = "30s"
	DefaultRPCMaxRetries   = 3
	DefaultRegistryWorkers = 8
	DefaultCacheTTL        = "720h"
	DefaultDataDir         = "./data"
	DefaultFlushTimeout    = "60s"
	DefaultProgressEvery   = 100
	DefaultScheduleCron    = "@hourly"
	DefaultScheduleWindow  = "1h"
	DefaultScheduleLag     = "5m"
	DefaultScheduleTimeout = "50m"
	DefaultScheduleFile    = "rolling.parquet"
)

// FlagKeys maps command-line flag names to config keys.
// Flags missing from a command's flag set are ignored.
var FlagKeys = map[string]string{
	"rpc-endpoint":   "rpc.endpoint",
	"ws-endpoint":    "rpc.ws_endpoint",
	"pools-file":     "pools.file",
	"resolver":       "resolver.kind",
	"subgraph-url":   "resolver.subgraph_url",
	"redis-url":      "resolver.redis_url",
	"backend":        "storage.backend",
	"data-dir":       "storage.data_dir",
	"postgres-dsn":   "storage.postgres_dsn",
	"clickhouse-dsn": "storage.clickhouse_dsn",
	"migrate":        "storage.migrate",
	"metrics-addr":   "metrics.addr",
	"log-level":      "log.level",
	"log-encoding":   "log.encoding",
	"cron":           "schedule.cron",
	"window":         "schedule.window",
}

// LoadConfig loads configuration from file, env vars, flags and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("rpc.endpoint", "")
	v.SetDefault("rpc.ws_endpoint", "")
	v.SetDefault("rpc.timeout", DefaultRPCTimeout)
	v.SetDefault("rpc.max_retries", DefaultRPCMaxRetries)

	v.SetDefault("registry.address", "")
	v.SetDefault("registry.workers", DefaultRegistryWorkers)
	v.SetDefault("registry.include", []string{})

	v.SetDefault("pools.file", "")

	v.SetDefault("resolver.kind", ResolverSubgraph)
	v.SetDefault("resolver.subgraph_url", blocks.DefaultSubgraphURL)
	v.SetDefault("resolver.redis_url", "")
	v.SetDefault("resolver.cache_ttl", DefaultCacheTTL)

	v.SetDefault("storage.backend", BackendParquet)
	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("collector.flush_timeout", DefaultFlushTimeout)
	v.SetDefault("collector.progress_every", DefaultProgressEvery)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", observability.DefaultNamespace)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")

	v.SetDefault("schedule.cron", DefaultScheduleCron)
	v.SetDefault("schedule.window", DefaultScheduleWindow)
	v.SetDefault("schedule.lag", DefaultScheduleLag)
	v.SetDefault("schedule.timeout", DefaultScheduleTimeout)
	v.SetDefault("schedule.filename", DefaultScheduleFile)
	v.SetDefault("schedule.run_on_start", false)
}
