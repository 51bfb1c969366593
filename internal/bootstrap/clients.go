package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"curve-lp-lab/internal/blocks"
	"curve-lp-lab/internal/config"
	"curve-lp-lab/internal/curve"
	"curve-lp-lab/internal/ethrpc"
	"curve-lp-lab/internal/logging"
	"curve-lp-lab/internal/observability"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Encoding)
}

// NewMetrics creates metrics on a fresh registry and, when metrics.addr is
// set, serves them until ctx is done.
func NewMetrics(ctx context.Context, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	if cfg.Metrics.Addr != "" {
		go func() {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := observability.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
	return metrics
}

// NewRPCClient creates the JSON-RPC client. The caller closes it.
func NewRPCClient(cfg *config.Config, metrics *observability.Metrics) *ethrpc.HTTPClient {
	return ethrpc.NewHTTPClient(cfg.RPC.Endpoint,
		ethrpc.WithTimeout(cfg.RPC.Timeout),
		ethrpc.WithMaxRetries(cfg.RPC.MaxRetries),
		ethrpc.WithLatencyObserver(metrics.RecordRPCLatency),
	)
}

// NewResolver builds the date resolver selected by resolver.kind, cached in
// Redis when resolver.redis_url is set. The returned func releases Redis.
func NewResolver(ctx context.Context, cfg *config.Config, rpc blocks.HeaderSource, logger *zap.Logger) (blocks.Resolver, func(), error) {
	var (
		inner interface {
			blocks.Resolver
			blocks.TimestampResolver
		}
		prefix string
	)

	switch cfg.Resolver.Kind {
	case config.ResolverSubgraph:
		inner = blocks.NewSubgraphResolver(cfg.Resolver.SubgraphURL,
			blocks.WithSubgraphHTTPClient(&http.Client{Timeout: cfg.RPC.Timeout}))
		prefix = "curvelp:block:subgraph"
	case config.ResolverRPC:
		if rpc == nil {
			return nil, nil, fmt.Errorf("%w: rpc resolver needs rpc.endpoint", config.ErrInvalidConfig)
		}
		inner = blocks.NewRPCResolver(rpc)
		prefix = "curvelp:block:rpc"
	default:
		return nil, nil, fmt.Errorf("%w: resolver kind %q", config.ErrInvalidConfig, cfg.Resolver.Kind)
	}

	if cfg.Resolver.RedisURL == "" {
		return inner, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Resolver.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info("block resolutions cached in redis", zap.String("addr", opts.Addr))

	cached := blocks.NewCachedResolver(inner, rdb, blocks.CachedResolverOptions{
		Prefix: prefix,
		TTL:    cfg.Resolver.CacheTTL,
		Logger: logger,
	})
	return cached, func() { rdb.Close() }, nil
}

// NewCatalog returns the static catalog when pools are listed in config or a
// pools file, and the on-chain registry catalog otherwise.
func NewCatalog(cfg *config.Config, rpc curve.RegistryRPC, logger *zap.Logger) (curve.Catalog, error) {
	if cfg.StaticPools() {
		entries := append([]curve.PoolEntry(nil), cfg.Pools.Static...)
		if cfg.Pools.File != "" {
			fromFile, err := curve.LoadPoolsFile(cfg.Pools.File)
			if err != nil {
				return nil, err
			}
			entries = append(entries, fromFile...)
		}
		return curve.NewStaticCatalog(entries)
	}

	if rpc == nil {
		return nil, fmt.Errorf("%w: registry catalog needs rpc.endpoint", config.ErrInvalidConfig)
	}

	var registry common.Address
	if cfg.Registry.Address != "" {
		registry = common.HexToAddress(cfg.Registry.Address)
	}
	return curve.NewRegistryCatalog(rpc, curve.RegistryCatalogOptions{
		Registry: registry,
		Workers:  cfg.Registry.Workers,
		Include:  cfg.Registry.Include,
		Logger:   logger,
	}), nil
}
