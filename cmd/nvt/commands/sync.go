// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
)

func syncCommand() *cli.Command {
	var (
		configPath string
		backends   []string
		dryRun     bool
	)
	return &cli.Command{
		Name:    "sync",
		Summary: "Converge all configured backends onto the desired directory",
		Description: `Load the desired user directory from the configured source and bring
every configured backend in line with it: create missing accounts,
update drifted ones, and remove accounts the directory no longer
contains. Backends run in a fixed order; the first failure aborts the
run and leaves later backends untouched. Already-applied changes stay
applied, and the next run continues from the converged state.`,
		Usage: "nvt sync [flags]",
		Examples: []cli.Example{
			{
				Description: "Converge every configured backend",
				Command:     "nvt sync",
			},
			{
				Description: "Converge only Keycloak and Authentik",
				Command:     "nvt sync --backend keycloak --backend authentik",
			},
			{
				Description: "Show what would change without writing",
				Command:     "nvt sync --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			backendFlagVar(flagSet, &backends)
			flagSet.BoolVar(&dryRun, "dry-run", false, "report pending operations without writing")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			logger = logger.With("command", "sync")

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			set, err := buildServices(cfg, backends, logger)
			if err != nil {
				return err
			}
			defer set.Close()

			users, err := loadUsers(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if dryRun {
				summaries, err := collectPlans(ctx, set, users)
				if err != nil {
					return err
				}
				return printPlan(os.Stdout, summaries)
			}

			for _, service := range set.services {
				if err := service.Sync(ctx, users); err != nil {
					return err
				}
			}
			logger.Info("run complete", "backends", len(set.services), "users", len(users))
			return nil
		},
	}
}
