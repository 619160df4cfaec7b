// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the nvt command tree: the sync pipeline
// (sync, plan), configuration tooling (validate, doctor), directory
// inspection (users), and credential management (credentials).
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
	"github.com/astahhu/nutzerverwaltungstool/lib/version"
)

// Root builds and returns the complete nvt command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "nvt",
		Description: `nvt: keep identity backends in sync with one user directory.

Read the desired users from a Nextcloud table or a local file and
converge Keycloak, Authentik, GitLab, and Matrix onto them in one
pass. Designed to run unattended from cron; state lives only in the
source and the backends.`,
		Subcommands: []*cli.Command{
			syncCommand(),
			planCommand(),
			validateCommand(),
			doctorCommand(),
			usersCommand(),
			credentialsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("nvt %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
