// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
)

func validateCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "validate",
		Summary: "Check the configuration file without contacting anything",
		Description: `Parse and validate the configuration. All problems are reported at
once, so a broken file needs only one round trip to fix. Validation is
offline; use doctor to also probe the source and backend credentials.`,
		Usage: "nvt validate [flags]",
		Examples: []cli.Example{
			{
				Description: "Validate the file named by the environment variable",
				Command:     "nvt validate",
			},
			{
				Description: "Validate a candidate file before installing it",
				Command:     "nvt validate --config ./config.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			cfg, err := loadConfigUnvalidated(configPath)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				fmt.Println("Configuration has problems:")
				for _, problem := range strings.Split(err.Error(), "\n") {
					fmt.Printf("  - %s\n", problem)
				}
				return &cli.ExitError{Code: 1}
			}

			backends := strings.Join(cfg.Backends(), ", ")
			if backends == "" {
				backends = "none"
			}
			fmt.Println("Configuration OK.")
			fmt.Printf("  source:   %s\n", describeSource(cfg))
			fmt.Printf("  backends: %s\n", backends)
			return nil
		},
	}
}
