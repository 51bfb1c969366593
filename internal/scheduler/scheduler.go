// Package scheduler runs the collect job over a rolling window on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"curve-lp-lab/internal/pipeline"
)

// Job runs one collection over the given request.
type Job interface {
	Run(ctx context.Context, req pipeline.CollectRequest) (*pipeline.CollectReport, error)
}

// Options configures a Scheduler.
type Options struct {
	// Spec is a standard five-field cron expression or a descriptor such as @hourly.
	Spec string
	// Window is the span of time each run collects.
	Window time.Duration
	// Lag moves the window end back from the current time.
	Lag time.Duration
	// Timeout bounds a single run.
	// Default: 50m
	Timeout time.Duration

	Logger *zap.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Scheduler triggers Job on a cron schedule. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	Cron *cron.Cron

	job     Job
	window  time.Duration
	lag     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
	ctx     context.Context
}

// New creates a Scheduler and registers the collect task. ctx bounds every run.
func New(ctx context.Context, job Job, opts Options) (*Scheduler, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %v", opts.Window)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 50 * time.Minute
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cronLogger := zapCronLogger{s: logger.Sugar()}
	s := &Scheduler{
		Cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		job:     job,
		window:  opts.Window,
		lag:     opts.Lag,
		timeout: timeout,
		logger:  logger,
		now:     now,
		ctx:     ctx,
	}

	if _, err := s.Cron.AddFunc(opts.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("register collect task: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Duration("window", s.window), zap.Duration("lag", s.lag))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow runs the collect task immediately, outside the schedule.
func (s *Scheduler) RunNow() error {
	return s.run()
}

// Window returns the date range a run started at now collects, formatted as RFC 3339.
func (s *Scheduler) Window(now time.Time) pipeline.CollectRequest {
	end := now.Add(-s.lag).UTC().Truncate(time.Second)
	start := end.Add(-s.window)
	return pipeline.CollectRequest{
		DateStart: start.Format(time.RFC3339),
		DateEnd:   end.Format(time.RFC3339),
	}
}

func (s *Scheduler) tick() {
	// Errors are logged by run
	_ = s.run()
}

func (s *Scheduler) run() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	req := s.Window(s.now())
	logger := s.logger.With(zap.String("date_start", req.DateStart), zap.String("date_end", req.DateEnd))
	logger.Info("scheduled collection started")

	report, err := s.job.Run(ctx, req)
	if err != nil {
		logger.Error("scheduled collection failed", zap.Error(err))
		return err
	}

	logger.Info("scheduled collection finished",
		zap.Stringer("range", report.Range),
		zap.Int("observations_added", report.Result.Stats.ObservationsAdded),
	)
	return nil
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = zapCronLogger{}
