package revenue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"curve-lp-lab/internal/observability"
	"curve-lp-lab/internal/storage"
)

var (
	// ErrInputMissing is returned when the input dataset was never saved.
	ErrInputMissing = errors.New("revenue input missing")
	// ErrNoObservations is returned when the input dataset holds no rows.
	ErrNoObservations = errors.New("no observations")
)

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Input  storage.ObservationStore
	Output storage.RevenueStore
	// CSVPath, if set, receives a CSV copy of the revenue series.
	CSVPath string
	// SummaryPath, if set, receives per-pool revenue totals as CSV.
	SummaryPath string

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Runner loads a collected dataset, derives revenue and writes it out.
type Runner struct {
	input       storage.ObservationStore
	output      storage.RevenueStore
	csvPath     string
	summaryPath string
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		input:       opts.Input,
		output:      opts.Output,
		csvPath:     opts.CSVPath,
		summaryPath: opts.SummaryPath,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Report describes a completed revenue run.
type Report struct {
	Points    int
	Pools     []PoolSummary
	Input     string
	Output    string
	Duration  time.Duration
	CSVOutput string
}

// Run executes load, derive and save. Nothing is written if the input is missing or empty.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	report, err := r.run(ctx)
	if err != nil {
		r.metrics.RecordRevenueRun("failed", 0)
		r.logger.Error("revenue run failed",
			zap.String("input", r.input.Location()),
			zap.Error(err),
		)
		return nil, err
	}

	report.Duration = time.Since(start)
	r.metrics.RecordRevenueRun("completed", report.Points)
	r.metrics.MarkSuccess(time.Now())

	r.logger.Info("revenue run completed",
		zap.String("input", report.Input),
		zap.String("output", report.Output),
		zap.Int("points", report.Points),
		zap.Int("pools", len(report.Pools)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	if ec, ok := r.input.(storage.ExistenceChecker); ok {
		exists, err := ec.Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("check input %s: %w", r.input.Location(), err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, r.input.Location())
		}
	}

	rows, err := r.input.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.input.Location(), err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoObservations, r.input.Location())
	}

	points := Derive(rows)
	summaries := Summarize(points)

	r.logger.Debug("revenue derived",
		zap.Int("observations", len(rows)),
		zap.Int("pools", len(summaries)),
	)

	if err := r.output.Save(ctx, points); err != nil {
		return nil, fmt.Errorf("save %s: %w", r.output.Location(), err)
	}

	report := &Report{
		Points: len(points),
		Pools:  summaries,
		Input:  r.input.Location(),
		Output: r.output.Location(),
	}

	if r.csvPath != "" {
		if err := writeFile(r.csvPath, RenderCSV(points)); err != nil {
			return nil, err
		}
		report.CSVOutput = r.csvPath
	}
	if r.summaryPath != "" {
		if err := writeFile(r.summaryPath, RenderSummaryCSV(summaries)); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
