package collector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"curve-lp-lab/internal/domain"
)

// HeadStream delivers new chain head numbers.
type HeadStream struct {
	Numbers <-chan uint64
	// Err reports why Numbers was closed. Nil, or a nil result, means the
	// stream ended cleanly.
	Err func() error
}

func (h HeadStream) err() error {
	if h.Err == nil {
		return nil
	}
	return h.Err()
}

// Follow collects new blocks as their numbers arrive on heads, starting at
// from. Every head h extends collection to [next, h+1), so blocks skipped by
// the head stream are still read. Heads at or below the last collected block
// are ignored.
//
// The table is saved once, when heads is closed, ctx is done or a read
// fault occurs. Cancellation is the normal way to stop following and ends
// the run as completed. A stream closed with an error aborts the run with a
// StageHeads fault.
func (c *Collector) Follow(ctx context.Context, from uint64, heads HeadStream, pools []domain.Pool, table *Table) Result {
	start := time.Now()
	r := c.newRun(0)
	next := from

	c.logger.Info("following new heads",
		zap.Uint64("from", from),
		zap.Int("pools", len(pools)),
		zap.Int("existing_rows", table.Len()),
	)

	fault := validatePools(from, pools)

loop:
	for fault == nil {
		select {
		case <-ctx.Done():
			break loop
		case head, ok := <-heads.Numbers:
			if !ok {
				if err := heads.err(); err != nil && ctx.Err() == nil {
					fault = &Fault{Sample: next, Stage: StageHeads, Err: err}
					c.metrics.RecordReadFault(string(StageHeads))
				}
				break loop
			}
			if head < next {
				continue
			}

			rng := domain.SampleRange{Start: next, End: head + 1}
			fault = c.collect(ctx, rng, pools, table, r)
			if fault != nil {
				break loop
			}
			next = head + 1
		}
	}

	// Stopping mid-sample is a shutdown, not a read failure
	if fault != nil && ctx.Err() != nil && errors.Is(fault, ctx.Err()) {
		fault = nil
	}

	res := c.finish(ctx, table, r, fault)
	res.Stats.Duration = time.Since(start)

	c.logResult(res)
	return res
}
