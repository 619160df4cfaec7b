// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

func planCommand() *cli.Command {
	var (
		configPath string
		backends   []string
	)
	return &cli.Command{
		Name:    "plan",
		Summary: "Show pending operations without writing anything",
		Description: `Fetch the actual state of every configured backend and print the
operations a sync would perform. Plan never writes; it is safe to run
against production at any time.`,
		Usage: "nvt plan [flags]",
		Examples: []cli.Example{
			{
				Description: "Preview the full run",
				Command:     "nvt plan",
			},
			{
				Description: "Preview only the GitLab membership changes",
				Command:     "nvt plan --backend gitlab",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			backendFlagVar(flagSet, &backends)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			logger = logger.With("command", "plan")

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
			summaries, err := collectPlans(ctx, set, users)
			if err != nil {
				return err
			}
			return printPlan(os.Stdout, summaries)
		},
	}
}

// collectPlans asks every service for its read-only plan.
func collectPlans(ctx context.Context, set *serviceSet, users directory.Users) ([]*reconcile.Summary, error) {
	summaries := make([]*reconcile.Summary, 0, len(set.services))
	for _, service := range set.services {
		summary, err := service.Plan(ctx, users)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// printPlan renders the pending operations as one table, grouped per
// backend: missing catalog roles, then account creates, updates, and
// deletes.
func printPlan(w io.Writer, summaries []*reconcile.Summary) error {
	pending := 0
	for _, summary := range summaries {
		pending += len(summary.NewRoles) + len(summary.Creates) + len(summary.Updates) + len(summary.Deletes)
	}
	if pending == 0 {
		fmt.Fprintln(w, "No changes. Every backend matches the desired directory.")
		return nil
	}

	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "BACKEND\tOPERATION\tKEY")
	for _, summary := range summaries {
		for _, name := range summary.NewRoles {
			fmt.Fprintf(writer, "%s\tcreate-role\t%s\n", summary.Backend, name)
		}
		for _, key := range summary.Creates {
			fmt.Fprintf(writer, "%s\tcreate\t%s\n", summary.Backend, key)
		}
		for _, key := range summary.Updates {
			fmt.Fprintf(writer, "%s\tupdate\t%s\n", summary.Backend, key)
		}
		for _, key := range summary.Deletes {
			fmt.Fprintf(writer, "%s\tdelete\t%s\n", summary.Backend, key)
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d operation(s) pending. Run 'nvt sync' to apply.\n", pending)
	return nil
}
