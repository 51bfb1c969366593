// Package bootstrap builds the runtime components of the commands from
// configuration: stores, RPC clients, resolvers, catalogs and metrics.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"curve-lp-lab/internal/config"
	"curve-lp-lab/internal/observability"
	"curve-lp-lab/internal/storage"
	chstore "curve-lp-lab/internal/storage/clickhouse"
	"curve-lp-lab/internal/storage/memory"
	"curve-lp-lab/internal/storage/migrations"
	"curve-lp-lab/internal/storage/parquet"
	pgstore "curve-lp-lab/internal/storage/postgres"
)

// ErrUnsupported is returned for store combinations a backend cannot serve.
var ErrUnsupported = errors.New("unsupported by backend")

// Stores holds the result stores of one command run.
type Stores struct {
	Backend      string
	Observations storage.ObservationStore
	// Revenue is nil unless a revenue output was requested.
	Revenue storage.RevenueStore

	close func()
}

// Close releases backend connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores opens the observation dataset named input and, if output is
// non-empty, the revenue dataset named output. File backends resolve names
// against storage.data_dir; database backends use them as dataset keys.
func OpenStores(ctx context.Context, cfg *config.Config, input, output string, metrics *observability.Metrics) (*Stores, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: input dataset name is required", config.ErrInvalidConfig)
	}

	s := &Stores{Backend: cfg.Storage.Backend}

	switch cfg.Storage.Backend {
	case config.BackendParquet:
		s.Observations = parquet.NewObservationStore(cfg.Storage.DataPath(input))
		if output != "" {
			s.Revenue = parquet.NewRevenueStore(cfg.Storage.DataPath(output))
		}

	case config.BackendMemory:
		s.Observations = memory.NewObservationStore(config.Dataset(input))
		if output != "" {
			s.Revenue = memory.NewRevenueStore()
		}

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.Observations = pgstore.NewObservationStore(pool, config.Dataset(input))
		if output != "" {
			s.Revenue = pgstore.NewRevenueStore(pool, config.Dataset(output))
		}
		s.close = pool.Close

	case config.BackendClickHouse:
		if output != "" {
			return nil, fmt.Errorf("revenue output on %s: %w", cfg.Storage.Backend, ErrUnsupported)
		}
		conn, err := openClickHouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Observations = chstore.NewObservationStore(conn, config.Dataset(input))
		s.close = func() { conn.Close() }

	default:
		return nil, fmt.Errorf("%w: storage backend %q", config.ErrInvalidConfig, cfg.Storage.Backend)
	}

	s.Observations = storage.Instrument(s.Observations, cfg.Storage.Backend, metrics)
	return s, nil
}

func openClickHouse(ctx context.Context, cfg *config.Config) (*chstore.Conn, error) {
	if cfg.Storage.Migrate {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return conn, nil
	}
	return chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
}
