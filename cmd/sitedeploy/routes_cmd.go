package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/openmined/sitedeploy/internal/config"
	"github.com/openmined/sitedeploy/internal/routing"
	"github.com/spf13/cobra"
)

func (a *app) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes [declarations.yaml]",
		Short: "Generate routing rules, redirect objects and params from redirect declarations",
		Long: `Reads redirect and page declarations (YAML or JSON) and writes the artifacts
a deploy consumes into the artifacts dir. Without an argument the configured routesFile is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			path := cfg.RoutesFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return &usageError{err: errors.New("no declarations file, pass one or set routesFile")}
			}
			cmd.SilenceUsage = true

			decl, err := routing.LoadDeclarations(path)
			if err != nil {
				return &config.ValidationError{Field: "routesFile", Msg: err.Error()}
			}

			set, err := routing.Project(decl, routing.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			if err := artifacts.Save(cfg.ArtifactsDir, set); err != nil {
				return fmt.Errorf("save artifacts: %w", err)
			}

			slog.Debug("routes", "declarations", path, "artifactsDir", cfg.ArtifactsDir)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d routing rules, %d redirect objects, %d param rules written to %s\n",
				green.Render("✓"),
				len(set.RoutingRules), len(set.RedirectObjects), len(set.Params),
				cyan.Render(cfg.ArtifactsDir),
			)
			return nil
		},
	}
}
