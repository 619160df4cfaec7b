// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/lib/config"
	"github.com/astahhu/nutzerverwaltungstool/tables"
)

// checkStatus is the outcome of a single doctor check.
type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusFail checkStatus = "fail"
	statusWarn checkStatus = "warn"
	statusSkip checkStatus = "skip"
)

// checkResult is one line of the doctor checklist.
type checkResult struct {
	name    string
	status  checkStatus
	message string
}

func doctorCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "doctor",
		Summary: "Probe the source and every backend end-to-end",
		Description: `Check that a sync would have everything it needs: a valid
configuration, readable credential files, a reachable source, and
working credentials on every configured backend. Each probe is a
single cheap authenticated read; doctor never writes.

This is the command to run after editing the configuration or rotating
a credential, and the one to point cron's failure mail at.`,
		Usage: "nvt doctor [flags]",
		Examples: []cli.Example{
			{
				Description: "Probe everything the configuration names",
				Command:     "nvt doctor",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			configFlagVar(flagSet, &configPath)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			return printChecklist(os.Stdout, runChecks(ctx, configPath, logger))
		},
	}
}

// runChecks produces the checklist. Later checks depend on earlier
// ones: an unreadable or invalid configuration skips the probes
// instead of drowning the report in follow-on failures.
func runChecks(ctx context.Context, configPath string, logger *slog.Logger) []checkResult {
	var results []checkResult

	cfg, err := loadConfigUnvalidated(configPath)
	if err != nil {
		results = append(results, checkResult{"config", statusFail, err.Error()})
		results = append(results, checkResult{"source", statusSkip, "config unreadable"})
		return results
	}

	if err := cfg.Validate(); err != nil {
		problems := strings.Count(err.Error(), "\n") + 1
		results = append(results, checkResult{"config", statusFail,
			fmt.Sprintf("%d problem(s), run 'nvt validate' for details", problems)})
		results = append(results, checkResult{"source", statusSkip, "config invalid"})
		for _, name := range cfg.Backends() {
			results = append(results, checkResult{name, statusSkip, "config invalid"})
		}
		return results
	}

	backends := cfg.Backends()
	results = append(results, checkResult{"config", statusPass,
		fmt.Sprintf("%d backend(s) configured", len(backends))})

	if cfg.IdentityFile != "" {
		if _, err := os.Stat(cfg.IdentityFile); err != nil {
			results = append(results, checkResult{"identity file", statusFail, err.Error()})
		} else {
			results = append(results, checkResult{"identity file", statusPass, cfg.IdentityFile})
		}
	}

	results = append(results, checkSource(ctx, cfg, logger))

	if len(backends) == 0 {
		results = append(results, checkResult{"backends", statusWarn,
			"no backend sections configured; sync would do nothing"})
		return results
	}

	// One backend's bad credentials must not hide the state of the
	// others, so each backend is built and probed on its own.
	for _, name := range backends {
		set, err := buildServices(cfg, []string{name}, logger)
		if err != nil {
			results = append(results, checkResult{name, statusFail, err.Error()})
			continue
		}
		err = set.services[0].Ping(ctx)
		set.Close()
		if err != nil {
			results = append(results, checkResult{name, statusFail, err.Error()})
			continue
		}
		results = append(results, checkResult{name, statusPass, "credentials accepted"})
	}
	return results
}

// checkSource probes the configured source: a schema fetch for a
// Nextcloud table, a full load for a users file.
func checkSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) checkResult {
	if cfg.Source.Tables != nil {
		password, err := cfg.TablesPassword()
		if err != nil {
			return checkResult{"source", statusFail, err.Error()}
		}
		defer password.Close()

		client, err := tables.NewClient(tables.ClientConfig{
			URL:      cfg.Source.Tables.URL,
			Username: cfg.Source.Tables.Username,
			Password: password,
			TableID:  cfg.Source.Tables.TableID,
			Logger:   logger.With("component", "tables"),
		})
		if err != nil {
			return checkResult{"source", statusFail, err.Error()}
		}
		schema, err := client.Schema(ctx)
		if err != nil {
			return checkResult{"source", statusFail, err.Error()}
		}
		return checkResult{"source", statusPass,
			fmt.Sprintf("table %q, %d columns", schema.Title, len(schema.Columns))}
	}

	users, err := directory.LoadFile(cfg.Source.File, cfg.DirectoryMapping())
	if err != nil {
		return checkResult{"source", statusFail, err.Error()}
	}
	return checkResult{"source", statusPass, fmt.Sprintf("%d users in %s", len(users), cfg.Source.File)}
}

// printChecklist renders the results and returns ExitError{1} when any
// check failed, so cron and scripts can gate on the exit code.
func printChecklist(w io.Writer, results []checkResult) error {
	anyFailed := false
	for _, result := range results {
		fmt.Fprintf(w, "[%-5s]  %-40s  %s\n", strings.ToUpper(string(result.status)), result.name, result.message)
		if result.status == statusFail {
			anyFailed = true
		}
	}

	fmt.Fprintln(w)
	if anyFailed {
		fmt.Fprintln(w, "Some checks failed.")
		return &cli.ExitError{Code: 1}
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}
