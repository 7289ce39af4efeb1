package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/match"
)

var (
	addName    string
	addSlug    string
	addWebsite string
	varSlug    string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an entity to discover artifacts for",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == "memory" {
			return fmt.Errorf("add needs a persistent database driver, not %q", cfg.Database.Driver)
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

		e, err := a.store.AddEntity(ctx, artifact.Entity{
			Name:    strings.TrimSpace(addName),
			Slug:    strings.TrimSpace(addSlug),
			Website: strings.TrimSpace(addWebsite),
		})
		if err != nil {
			return err
		}
		return outputJSON(e)
	},
}

var variationsCmd = &cobra.Command{
	Use:   "variations NAME",
	Short: "Print the name variations used for ownership matching",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return outputJSON(map[string]any{
			"handle":     match.Handle(args[0]),
			"variations": match.Variations(args[0], varSlug),
		})
	},
}

func init() {
	rootCmd.AddCommand(addCmd, variationsCmd)
	addCmd.Flags().StringVar(&addName, "name", "", "entity display name")
	addCmd.Flags().StringVar(&addSlug, "slug", "", "entity slug")
	addCmd.Flags().StringVar(&addWebsite, "website", "", "entity website")
	addCmd.MarkFlagRequired("name") //nolint:errcheck,gosec // flag is defined above
	variationsCmd.Flags().StringVar(&varSlug, "slug", "", "entity slug")
}
