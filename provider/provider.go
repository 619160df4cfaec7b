// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider defines the surface a backend exposes to the sync
// engine. Each backend package (keycloak, authentik, gitlab, matrix)
// turns the desired user directory into its own remote record shape
// and converges the backend toward it with the reconcile engine.
package provider

import (
	"context"

	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

// Service is one configured backend.
//
// Plan is read-only: it fetches the backend's actual state and reports
// what Sync would do. Sync performs the writes. Both take the full
// desired directory; the backend derives its own desired subset where
// it manages only part of it (the source host manages only privileged
// users, for example).
type Service interface {
	// Name identifies the backend in logs and plan output.
	Name() string

	// Ping verifies credentials and API reachability with a single
	// cheap authenticated request.
	Ping(ctx context.Context) error

	// Plan reports the operations a Sync would perform, without
	// writing anything.
	Plan(ctx context.Context, users directory.Users) (*reconcile.Summary, error)

	// Sync converges the backend onto the desired directory.
	Sync(ctx context.Context, users directory.Users) error
}
