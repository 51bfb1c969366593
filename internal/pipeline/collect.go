// Package pipeline composes date resolution, pool discovery and the
// collection loop into one collect job.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"curve-lp-lab/internal/blocks"
	"curve-lp-lab/internal/collector"
	"curve-lp-lab/internal/curve"
	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// ErrFollowUnavailable is returned when follow mode is requested without a head source.
var ErrFollowUnavailable = errors.New("follow mode needs a head source")

// HeadSource subscribes to new chain head numbers. The stream closes when
// the subscription ends and reports a dropped connection through its Err.
type HeadSource func(ctx context.Context) (collector.HeadStream, error)

// CollectOptions configures CollectJob.
type CollectOptions struct {
	Resolver  blocks.Resolver
	Catalog   curve.Catalog
	Store     storage.ObservationStore
	Collector *collector.Collector
	// Heads is required only for follow mode.
	Heads  HeadSource
	Logger *zap.Logger
}

// CollectJob resolves a date range, lists pools, loads the existing result
// table and runs the collection loop over it.
type CollectJob struct {
	resolver  blocks.Resolver
	catalog   curve.Catalog
	store     storage.ObservationStore
	collector *collector.Collector
	heads     HeadSource
	logger    *zap.Logger
}

// NewCollectJob creates a CollectJob.
func NewCollectJob(opts CollectOptions) *CollectJob {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectJob{
		resolver:  opts.Resolver,
		catalog:   opts.Catalog,
		store:     opts.Store,
		collector: opts.Collector,
		heads:     opts.Heads,
		logger:    logger,
	}
}

// CollectRequest selects what to collect.
type CollectRequest struct {
	DateStart string
	// DateEnd is exclusive. It may be empty in follow mode, which then
	// collects everything from DateStart on as heads arrive.
	DateEnd string
	Follow  bool
}

// CollectReport describes a collect job run.
type CollectReport struct {
	Range  domain.SampleRange
	Pools  []domain.Pool
	Result collector.Result
	// Followed is set when follow mode ran after the historical range.
	Followed *collector.Result
}

// Err returns the error that ended the job, if any.
func (r *CollectReport) Err() error {
	if err := r.Result.Err(); err != nil {
		return err
	}
	if r.Followed != nil {
		return r.Followed.Err()
	}
	return nil
}

// Run executes the job. Errors before the loop (resolution, catalog, load)
// are returned without a report and leave the store untouched. Once the loop
// ran, the report is returned together with its error.
func (j *CollectJob) Run(ctx context.Context, req CollectRequest) (*CollectReport, error) {
	if req.DateStart == "" {
		return nil, fmt.Errorf("%w: start date is required", blocks.ErrInvalidDate)
	}
	if req.DateEnd == "" && !req.Follow {
		return nil, fmt.Errorf("%w: end date is required unless following", blocks.ErrInvalidDate)
	}
	if req.Follow && j.heads == nil {
		return nil, ErrFollowUnavailable
	}

	start, err := j.resolver.Resolve(ctx, req.DateStart)
	if err != nil {
		return nil, fmt.Errorf("resolve start: %w", err)
	}
	end := start
	if req.DateEnd != "" {
		end, err = j.resolver.Resolve(ctx, req.DateEnd)
		if err != nil {
			return nil, fmt.Errorf("resolve end: %w", err)
		}
	}

	rng, err := domain.NewSampleRange(start, end)
	if err != nil {
		return nil, err
	}

	j.logger.Info("querying between blocks",
		zap.Uint64("block_start", start),
		zap.String("date_start", req.DateStart),
		zap.Uint64("block_end", end),
		zap.String("date_end", req.DateEnd),
	)

	pools, err := j.catalog.ListPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	table, err := collector.LoadTable(ctx, j.store)
	if err != nil {
		return nil, err
	}
	if table.Len() > 0 {
		j.logger.Info("resuming from existing table",
			zap.String("location", j.store.Location()),
			zap.Int("rows", table.Len()),
		)
	}

	report := &CollectReport{Range: rng, Pools: pools}
	report.Result = j.collector.Run(ctx, rng, pools, table)
	if err := report.Result.Err(); err != nil || !req.Follow {
		return report, err
	}

	heads, err := j.heads(ctx)
	if err != nil {
		return report, fmt.Errorf("subscribe heads: %w", err)
	}

	followed := j.collector.Follow(ctx, rng.End, heads, pools, report.Result.Table)
	report.Followed = &followed
	return report, followed.Err()
}
