// Package main provides the revenue entry point: it derives per-block swap
// fee revenue from a collected dataset.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curve-lp-lab/internal/bootstrap"
	"curve-lp-lab/internal/cli"
	"curve-lp-lab/internal/revenue"
)

type revenueOptions struct {
	input   string
	output  string
	csv     string
	summary string
}

func main() {
	cli.Main(newRevenueCommand())
}

func newRevenueCommand() *cobra.Command {
	var opts revenueOptions

	cmd := &cobra.Command{
		Use:   "revenue",
		Short: "Derive swap fee revenue from collected pool state",
		Long: `Revenue sorts each pool's observations by block, differences the virtual
price between consecutive rows and writes

  swap_fee_revenue = virtual_price_diff * total_supply * 2

next to every row. The first row of each pool has no revenue.`,
		Example:       `  revenue --input-filename pools.parquet --output-filename revenue.parquet --csv revenue.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRevenue(cmd, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.input, "input-filename", "", "Collected dataset to read")
	fs.StringVar(&opts.output, "output-filename", "", "Revenue dataset to write")
	fs.StringVar(&opts.csv, "csv", "", "Also write the revenue series as CSV to this path")
	fs.StringVar(&opts.summary, "summary", "", "Write per-pool revenue totals as CSV to this path")
	cli.AddConfigFlag(fs)
	cli.AddStorageFlags(fs)
	cli.AddObservabilityFlags(fs)

	_ = cmd.MarkFlagRequired("input-filename")
	_ = cmd.MarkFlagRequired("output-filename")

	return cmd
}

func runRevenue(cmd *cobra.Command, opts revenueOptions) error {
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

	stores, err := bootstrap.OpenStores(ctx, cfg, opts.input, opts.output, metrics)
	if err != nil {
		return err
	}
	defer stores.Close()

	runner := revenue.NewRunner(revenue.RunnerOptions{
		Input:       stores.Observations,
		Output:      stores.Revenue,
		CSVPath:     opts.csv,
		SummaryPath: opts.summary,
		Logger:      logger,
		Metrics:     metrics,
	})

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %d revenue points from %s to %s\n", report.Points, report.Input, report.Output)
	for _, p := range report.Pools {
		fmt.Fprintf(out, "  %-24s blocks %d..%d  revenue %.6f\n", p.PoolName, p.FirstBlock, p.LastBlock, p.TotalRevenue)
	}
	return nil
}
