// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the
// nutzerverwaltungstool CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in the commands
// package and dispatched via [Command.Execute], which handles flag
// parsing, subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Run functions receive a context carrying interrupt cancellation and a
// structured logger from [NewCommandLogger]; commands that talk to
// backends tag their log lines with a run ID from [NewRunID] so one
// invocation's lines can be correlated in aggregated logs.
package cli
