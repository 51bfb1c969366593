// Package cli holds the flag sets and process entry shared by the commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"curve-lp-lab/internal/config"
)

// ConfigFlag names the config file flag.
const ConfigFlag = "config"

// Main executes cmd with a context cancelled on SIGINT or SIGTERM and exits
// non-zero with the error on stderr if it fails.
func Main(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// LoadConfig loads configuration for cmd, overlaying the flags it defines.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	var path string
	if f := cmd.Flags().Lookup(ConfigFlag); f != nil {
		path = f.Value.String()
	}
	return config.LoadConfig(path, cmd.Flags())
}

// AddConfigFlag registers --config.
func AddConfigFlag(fs *pflag.FlagSet) {
	fs.String(ConfigFlag, "", "Config file (default: ./curvelp.yaml or $HOME/curvelp.yaml)")
}

// AddRPCFlags registers the chain access flags.
func AddRPCFlags(fs *pflag.FlagSet) {
	fs.String("rpc-endpoint", "", "Ethereum JSON-RPC HTTP endpoint")
	fs.String("ws-endpoint", "", "Ethereum JSON-RPC WebSocket endpoint, used by --follow")
	fs.String("pools-file", "", "YAML file listing pools; the on-chain registry is used when unset")
	fs.String("resolver", "", "Date to block resolver: subgraph or rpc")
	fs.String("subgraph-url", "", "Blocks subgraph GraphQL endpoint")
	fs.String("redis-url", "", "Redis URL caching date to block resolutions")
}

// AddStorageFlags registers the result store flags.
func AddStorageFlags(fs *pflag.FlagSet) {
	fs.String("backend", "", "Result store backend: parquet, postgres, clickhouse or memory")
	fs.String("data-dir", "", "Directory for parquet files")
	fs.String("postgres-dsn", "", "Postgres connection string")
	fs.String("clickhouse-dsn", "", "ClickHouse connection string")
	fs.Bool("migrate", true, "Apply database migrations before use")
}

// AddObservabilityFlags registers logging and metrics flags.
func AddObservabilityFlags(fs *pflag.FlagSet) {
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.String("log-level", "", "Log level: debug, info, warn or error")
	fs.String("log-encoding", "", "Log encoding: json or console")
}

// AddScheduleFlags registers the rolling schedule flags.
func AddScheduleFlags(fs *pflag.FlagSet) {
	fs.String("cron", "", "Cron expression triggering a collection")
	fs.Duration("window", 0, "Span of time each collection covers")
}
