// Package collector implements the checkpointed incremental collection loop:
// for every block in a range it reads the state of the pools not yet
// recorded, appends one observation per pool, and persists the result
// table once when the run ends, whether it completed or faulted.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/observability"
	"curve-lp-lab/internal/storage"
)

// StateReader reads sample metadata and pool state at a block.
type StateReader interface {
	SampleMetadata(ctx context.Context, block uint64) (int64, error)
	BatchRead(ctx context.Context, block uint64, pools []domain.Pool) (map[string]domain.PoolState, error)
}

// Options configures a Collector.
type Options struct {
	Reader StateReader
	Store  storage.ObservationStore

	// FlushTimeout bounds the final save, which runs even after ctx is cancelled.
	// Default: 60s
	FlushTimeout time.Duration
	// ProgressEvery logs an info-level progress line every N read samples.
	// Default: 100
	ProgressEvery int

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Collector drives the collection loop over one reader and one store.
type Collector struct {
	reader        StateReader
	store         storage.ObservationStore
	flushTimeout  time.Duration
	progressEvery int
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// New creates a Collector.
func New(opts Options) *Collector {
	flushTimeout := opts.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 60 * time.Second
	}

	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 100
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Collector{
		reader:        opts.Reader,
		store:         opts.Store,
		flushTimeout:  flushTimeout,
		progressEvery: progressEvery,
		logger:        logger,
		metrics:       opts.Metrics,
	}
}

// Run collects every block of rng in ascending order into table and then
// saves table once. Blocks whose pools are all recorded are skipped without
// any read, so re-running over a persisted table resumes where it stopped.
//
// On a read fault the loop stops at the failing block, the rows gathered so
// far are saved, and the Result carries the Fault. The table is saved only
// if this run appended rows.
func (c *Collector) Run(ctx context.Context, rng domain.SampleRange, pools []domain.Pool, table *Table) Result {
	start := time.Now()
	run := c.newRun(rng.Len())

	c.logger.Info("collection started",
		zap.Stringer("range", rng),
		zap.Int("pools", len(pools)),
		zap.Int("existing_rows", table.Len()),
	)

	fault := validatePools(rng.Start, pools)
	if fault == nil {
		fault = c.collect(ctx, rng, pools, table, run)
	}

	res := c.finish(ctx, table, run, fault)
	res.Stats.Duration = time.Since(start)

	c.logResult(res)
	return res
}

// run tracks progress across the samples of one Run or Follow.
type run struct {
	stats     Stats
	total     uint64 // 0 when unbounded
	done      uint64
	readTime  time.Duration
	startedAt time.Time
}

func (c *Collector) newRun(total uint64) *run {
	return &run{total: total, startedAt: time.Now()}
}

// collect runs the loop over rng, stopping at the first fault.
func (c *Collector) collect(ctx context.Context, rng domain.SampleRange, pools []domain.Pool, table *Table, r *run) *Fault {
	for s := rng.Start; s < rng.End; s++ {
		if err := ctx.Err(); err != nil {
			return &Fault{Sample: s, Stage: StageInterrupted, Err: err}
		}

		if fault := c.collectSample(ctx, s, pools, table, r); fault != nil {
			c.metrics.RecordReadFault(string(fault.Stage))
			return fault
		}
		r.done++
	}
	return nil
}

// collectSample handles one block. Rows are appended only after every
// pending pool was read, so a fault never leaves a partial block behind.
func (c *Collector) collectSample(ctx context.Context, block uint64, pools []domain.Pool, table *Table, r *run) (fault *Fault) {
	stage := StageMetadata
	defer func() {
		if rec := recover(); rec != nil {
			fault = &Fault{Sample: block, Stage: stage, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	pending := make([]domain.Pool, 0, len(pools))
	for _, p := range pools {
		if !table.Exists(block, p.Name) {
			pending = append(pending, p)
		}
	}

	skipped := len(pools) - len(pending)
	r.stats.ObservationsSkipped += skipped
	c.metrics.RecordObservationsSkipped(skipped)

	if len(pending) == 0 {
		r.stats.SamplesSkipped++
		c.metrics.RecordSampleSkipped()
		return nil
	}

	sampleStart := time.Now()

	timestamp, err := c.reader.SampleMetadata(ctx, block)
	if err != nil {
		return &Fault{Sample: block, Stage: stage, Err: err}
	}

	stage = StageBatchRead
	states, err := c.reader.BatchRead(ctx, block, pending)
	if err != nil {
		return &Fault{Sample: block, Stage: stage, Err: err}
	}

	observations := make([]domain.Observation, 0, len(pending))
	for _, p := range pending {
		state, ok := states[p.Name]
		if !ok {
			return &Fault{Sample: block, Stage: stage, Err: fmt.Errorf("pool %s missing from batch result", p.Name)}
		}
		observations = append(observations, domain.NewObservation(p, block, timestamp, state))
	}

	for _, o := range observations {
		if err := table.Add(o); err != nil {
			// Unreachable with validated pools and pending computed above
			return &Fault{Sample: block, Stage: stage, Err: err}
		}
	}

	elapsed := time.Since(sampleStart)
	r.readTime += elapsed
	r.stats.SamplesProcessed++
	r.stats.ObservationsAdded += len(observations)
	c.metrics.RecordSample(block, len(observations), elapsed.Seconds())

	c.logger.Debug("sample collected",
		zap.Uint64("block", block),
		zap.Int64("timestamp", timestamp),
		zap.Int("pools", len(observations)),
		zap.Duration("took", elapsed),
	)

	if r.stats.SamplesProcessed%c.progressEvery == 0 {
		c.logProgress(block, r)
	}

	return nil
}

func (c *Collector) logProgress(block uint64, r *run) {
	fields := []zap.Field{
		zap.Uint64("block", block),
		zap.Int("samples_read", r.stats.SamplesProcessed),
		zap.Int("samples_skipped", r.stats.SamplesSkipped),
		zap.Int("observations_added", r.stats.ObservationsAdded),
	}

	if r.total > 0 && r.stats.SamplesProcessed > 0 {
		remaining := r.total - r.done - 1
		avg := r.readTime / time.Duration(r.stats.SamplesProcessed)
		fields = append(fields,
			zap.Uint64("remaining", remaining),
			zap.Duration("avg_sample", avg),
			zap.Duration("eta", avg*time.Duration(remaining)),
		)
	}

	c.logger.Info("collection progress", fields...)
}

// finish saves the table if the run added rows and builds the Result.
func (c *Collector) finish(ctx context.Context, table *Table, r *run, fault *Fault) Result {
	res := Result{
		Status:   StatusCompleted,
		Table:    table,
		Stats:    r.stats,
		Fault:    fault,
		Location: c.store.Location(),
	}
	if fault != nil {
		res.Status = StatusAborted
	}

	if r.stats.ObservationsAdded > 0 {
		// The flush must happen even when the run was interrupted
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flushTimeout)
		defer cancel()

		err := c.store.Save(saveCtx, table.Rows())
		c.metrics.RecordFlush(err)
		if err != nil {
			res.PersistErr = err
		} else {
			res.Stats.Saved = true
		}
	}

	c.metrics.RecordCollectorRun(string(res.Status))
	if res.Err() == nil {
		c.metrics.MarkSuccess(time.Now())
	}

	return res
}

func (c *Collector) logResult(res Result) {
	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.String("location", res.Location),
		zap.Int("samples_read", res.Stats.SamplesProcessed),
		zap.Int("samples_skipped", res.Stats.SamplesSkipped),
		zap.Int("observations_added", res.Stats.ObservationsAdded),
		zap.Int("rows", res.Table.Len()),
		zap.Bool("saved", res.Stats.Saved),
		zap.Duration("took", res.Stats.Duration),
	}

	if err := res.Err(); err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			c.logger.Error("collection result not persisted", append(fields, zap.Error(err))...)
			return
		}
		c.logger.Warn("collection aborted", append(fields, zap.Error(err))...)
		return
	}

	c.logger.Info("collection finished", fields...)
}

// validatePools rejects pool lists that would record one key twice.
func validatePools(first uint64, pools []domain.Pool) *Fault {
	seen := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		if p.Name == "" {
			return &Fault{Sample: first, Stage: StageCatalog, Err: fmt.Errorf("%w: pool without name", storage.ErrInvalidInput)}
		}
		if _, dup := seen[p.Name]; dup {
			return &Fault{Sample: first, Stage: StageCatalog, Err: fmt.Errorf("%w: pool %s listed twice", storage.ErrDuplicateKey, p.Name)}
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
