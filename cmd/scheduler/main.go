// Package main provides the scheduler entry point: it collects a rolling
// window of recent blocks on a cron schedule until interrupted.
package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curve-lp-lab/internal/bootstrap"
	"curve-lp-lab/internal/cli"
	"curve-lp-lab/internal/scheduler"
)

func main() {
	cli.Main(newSchedulerCommand())
}

func newSchedulerCommand() *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Collect the most recent window of blocks on a cron schedule",
		Long: `Scheduler triggers a collection of the last schedule.window of time on
every schedule.cron tick, writing to schedule.filename. Ticks that fire while
a collection is still running are skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd, runOnStart)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&runOnStart, "run-on-start", false, "Collect once immediately before the first tick")
	cli.AddConfigFlag(fs)
	cli.AddRPCFlags(fs)
	cli.AddStorageFlags(fs)
	cli.AddObservabilityFlags(fs)
	cli.AddScheduleFlags(fs)

	return cmd
}

func runScheduler(cmd *cobra.Command, runOnStart bool) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	metrics := bootstrap.NewMetrics(ctx, cfg, logger)

	rt, err := bootstrap.OpenCollect(ctx, cfg, cfg.Schedule.Filename, logger, metrics)
	if err != nil {
		return err
	}
	defer rt.Close()

	s, err := scheduler.New(ctx, rt.Job, scheduler.Options{
		Spec:    cfg.Schedule.Cron,
		Window:  cfg.Schedule.Window,
		Lag:     cfg.Schedule.Lag,
		Timeout: cfg.Schedule.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if runOnStart || cfg.Schedule.RunOnStart {
		if err := s.RunNow(); err != nil {
			logger.Warn("initial collection failed", zap.Error(err))
		}
	}

	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
