// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
	"github.com/astahhu/nutzerverwaltungstool/directory"
)

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:    "users",
		Summary: "Inspect the desired user directory",
		Description: `Read the desired directory from the configured source and show it,
without touching any backend. Useful for checking what a sync would
treat as the truth.`,
		Subcommands: []*cli.Command{
			usersListCommand(),
			usersExportCommand(),
		},
	}
}

func usersListCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "list",
		Summary: "List the desired users",
		Usage:   "nvt users list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			users, err := loadUsers(ctx, cfg, logger)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "IDENTIFIER\tNAME\tEMAIL\tROLES\tENABLED")
			for _, identifier := range users.Identifiers() {
				user := users[identifier]
				enabled := "yes"
				if !user.Enabled {
					enabled = "no"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
					identifier, user.DisplayName(), user.Email, len(user.Roles), enabled)
			}
			return writer.Flush()
		},
	}
}

func usersExportCommand() *cli.Command {
	var (
		configPath string
		format     string
		output     string
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write the desired users as a users file",
		Description: `Render the desired directory in the users-file format, so a table
source can be migrated to a local file (or snapshotted for a test
fixture). The output is accepted by the file source as-is.`,
		Usage: "nvt users export [flags]",
		Examples: []cli.Example{
			{
				Description: "Snapshot the table into a YAML users file",
				Command:     "nvt users export --format yaml --output users.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			flagSet.StringVar(&format, "format", "json", "output format: json or yaml")
			flagSet.StringVar(&output, "output", "", "output path (defaults to stdout)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			users, err := loadUsers(ctx, cfg, logger)
			if err != nil {
				return err
			}

			encoded, err := directory.EncodeFile(users, format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err := os.Stdout.Write(encoded)
				return err
			}
			if err := os.WriteFile(output, encoded, 0o644); err != nil {
				return fmt.Errorf("writing users file: %w", err)
			}
			logger.Info("users exported", "path", output, "users", len(users), "format", format)
			return nil
		},
	}
}
