package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"curve-lp-lab/internal/collector"
	"curve-lp-lab/internal/config"
	"curve-lp-lab/internal/curve"
	"curve-lp-lab/internal/ethrpc"
	"curve-lp-lab/internal/observability"
	"curve-lp-lab/internal/pipeline"
)

// CollectRuntime is a wired collect job and the resources behind it.
type CollectRuntime struct {
	Job    *pipeline.CollectJob
	Stores *Stores

	closers []func()
}

// Close releases every resource in reverse order of acquisition.
func (r *CollectRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// OpenCollect wires a collect job writing to the observation dataset named
// filename. Follow mode is available when rpc.ws_endpoint is set.
func OpenCollect(ctx context.Context, cfg *config.Config, filename string, logger *zap.Logger, metrics *observability.Metrics) (_ *CollectRuntime, err error) {
	if err := cfg.RequireRPC(); err != nil {
		return nil, err
	}

	rt := &CollectRuntime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rpc := NewRPCClient(cfg, metrics)
	rt.closers = append(rt.closers, rpc.Close)

	resolver, closeResolver, err := NewResolver(ctx, cfg, rpc, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeResolver)

	catalog, err := NewCatalog(cfg, rpc, logger)
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg, filename, "", metrics)
	if err != nil {
		return nil, err
	}
	rt.Stores = stores
	rt.closers = append(rt.closers, stores.Close)

	var heads pipeline.HeadSource
	if cfg.RPC.WSEndpoint != "" {
		var closeHeads func()
		heads, closeHeads = wsHeads(cfg.RPC.WSEndpoint, logger)
		rt.closers = append(rt.closers, closeHeads)
	}

	rt.Job = pipeline.NewCollectJob(pipeline.CollectOptions{
		Resolver: resolver,
		Catalog:  catalog,
		Store:    stores.Observations,
		Collector: collector.New(collector.Options{
			Reader:        curve.NewPoolStateReader(rpc),
			Store:         stores.Observations,
			FlushTimeout:  cfg.Collector.FlushTimeout,
			ProgressEvery: cfg.Collector.ProgressEvery,
			Logger:        logger,
			Metrics:       metrics,
		}),
		Heads:  heads,
		Logger: logger,
	})
	return rt, nil
}

// wsHeads dials the WebSocket endpoint on first use and streams new head numbers.
func wsHeads(endpoint string, logger *zap.Logger) (pipeline.HeadSource, func()) {
	var (
		mu      sync.Mutex
		clients []*ethrpc.WSClient
	)

	source := func(ctx context.Context) (collector.HeadStream, error) {
		client, err := ethrpc.NewWSClient(ctx, endpoint, nil)
		if err != nil {
			return collector.HeadStream{}, err
		}
		heads, err := client.SubscribeNewHeads(ctx)
		if err != nil {
			client.Close()
			return collector.HeadStream{}, fmt.Errorf("subscribe new heads: %w", err)
		}

		mu.Lock()
		clients = append(clients, client)
		mu.Unlock()

		logger.Info("subscribed to new heads", zap.String("endpoint", endpoint))
		return collector.HeadStream{Numbers: ethrpc.HeadNumbers(ctx, heads), Err: client.Err}, nil
	}

	closeAll := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range clients {
			if err := c.Err(); err != nil {
				logger.Warn("head subscription ended", zap.Error(err))
			}
			c.Close()
		}
		clients = nil
	}
	return source, closeAll
}
