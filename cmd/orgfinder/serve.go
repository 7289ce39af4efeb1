package main

import (
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/orgfinder/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve batch triggers, health and metrics over HTTP",
	Long: `Serve the HTTP trigger surface:

  POST /v1/discover/:catalog?limit=N   run one batch, respond with the report
  GET  /healthz                        liveness
  GET  /metrics                        Prometheus metrics`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
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

		var runners []server.Runner
		for _, name := range catalogs {
			r, err := a.runner(ctx, name)
			if err != nil {
				return err
			}
			runners = append(runners, r)
		}

		srv := server.New(runners, server.WithLogger(logger), server.WithDefaultLimit(cfg.Batch.Limit))
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}
