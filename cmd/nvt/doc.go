// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Nvt is the CLI for converging identity backends onto a single user
// directory. It provides subcommands for running the convergence
// (sync, plan), checking the setup (validate, doctor), inspecting and
// exporting the desired directory (users), and managing the
// age-encrypted credential files the configuration references
// (credentials).
package main
