package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/batch"
)

var (
	runCatalog string
	runLimit   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery batch and print the report",
	Long: `Run one discovery batch against a catalog and print the batch report as JSON.

With --catalog all, batches for every catalog run concurrently; entities inside
a batch are always processed one at a time.

Examples:
  orgfinder run --catalog github --limit 25
  orgfinder run --catalog all`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names, err := selectCatalogs(runCatalog)
		if err != nil {
			return err
		}
		limit := runLimit
		if limit <= 0 {
			limit = cfg.Batch.Limit
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("failed to close resources", "error", err)
			}
		}()

		runners := make([]*batch.Runner, len(names))
		for i, name := range names {
			if runners[i], err = a.runner(ctx, name); err != nil {
				return err
			}
		}

		reports := make([]artifact.BatchReport, len(runners))
		var g errgroup.Group
		for i, r := range runners {
			g.Go(func() error {
				reports[i] = r.Run(ctx, limit)
				if !reports[i].Success {
					return fmt.Errorf("%s batch failed", r.Catalog())
				}
				return nil
			})
		}
		runErr := g.Wait()

		var out any = reports
		if len(reports) == 1 {
			out = reports[0]
		}
		if err := outputJSON(out); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runCatalog, "catalog", "github", "catalog to search: github, huggingface or all")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "maximum entities to process (default from config)")
}
