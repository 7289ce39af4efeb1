// Command orgfinder discovers the catalog artifacts an entity owns and stores
// ownership-validated associations.
//
// Usage:
//
//	orgfinder add --name "Acme AI" --slug acme --website https://acme.ai
//	orgfinder run --catalog github --limit 25
//	orgfinder run --catalog all
//	orgfinder serve --addr :8080
//	orgfinder variations "Acme AI, Inc."
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/orgfinder/pkg/config"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "orgfinder",
	Short:         "Discover and validate the catalog artifacts owned by an entity",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
