// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Role is one entry of a backend's provider-wide role catalog: a
// Keycloak realm role or an Authentik group.
type Role struct {
	ID   string
	Name string
}

// Catalog is the role surface of a backend that keeps a provider-wide
// catalog separate from per-user assignment.
type Catalog[R any] interface {
	// Roles lists the catalog.
	Roles(ctx context.Context) ([]Role, error)
	// CreateRole adds a role to the catalog by name; the backend
	// assigns the ID.
	CreateRole(ctx context.Context, name string) error
	// UserRoles lists the roles assigned to a remote user.
	UserRoles(ctx context.Context, user R) ([]Role, error)
	// AssignRoles assigns catalog roles to a remote user. Called only
	// with a non-empty set.
	AssignRoles(ctx context.Context, user R, roles []Role) error
	// RemoveRoles withdraws assigned roles from a remote user. Called
	// only with a non-empty set.
	RemoveRoles(ctx context.Context, user R, roles []Role) error
}

// MissingRoles returns the names (sorted, deduplicated) that are not
// present in the existing catalog.
func MissingRoles(existing []Role, names []string) []string {
	have := make(map[string]bool, len(existing))
	for _, role := range existing {
		have[role.Name] = true
	}

	missing := make([]string, 0)
	seen := make(map[string]bool)
	for _, name := range names {
		if !have[name] && !seen[name] {
			missing = append(missing, name)
			seen[name] = true
		}
	}
	sort.Strings(missing)
	return missing
}

// SyncRoles converges the role catalog and the per-user assignments of
// matched users.
//
// First the catalog: the union of all desired role names is compared
// against the backend's catalog and each missing name is created
// exactly once. The catalog is then re-fetched so that assignments use
// the backend-assigned IDs.
//
// Then, for each matched user: additions are the desired roles present
// in the refreshed catalog but not yet assigned; removals are the
// assigned roles no longer desired. Matching is by exact name. Empty
// addition and removal sets make no backend call. Users in the create
// bucket are not touched here; they pick up their roles on the next
// run, when they appear as matches.
//
// The first failing call aborts the pass.
func SyncRoles[D, R any](
	ctx context.Context,
	logger *slog.Logger,
	catalog Catalog[R],
	desired map[string]D,
	updates []Match[D, R],
	rolesOf func(D) []string,
) error {
	catalogRoles, err := catalog.Roles(ctx)
	if err != nil {
		return fmt.Errorf("listing role catalog: %w", err)
	}

	var desiredNames []string
	for _, record := range desired {
		desiredNames = append(desiredNames, rolesOf(record)...)
	}

	for _, name := range MissingRoles(catalogRoles, desiredNames) {
		logger.Info("creating role", "role", name)
		if err := catalog.CreateRole(ctx, name); err != nil {
			return fmt.Errorf("creating role %q: %w", name, err)
		}
	}

	// Freshly created roles carry backend-assigned IDs; assignments
	// must reference those.
	catalogRoles, err = catalog.Roles(ctx)
	if err != nil {
		return fmt.Errorf("refreshing role catalog: %w", err)
	}

	for _, update := range updates {
		assigned, err := catalog.UserRoles(ctx, update.Actual)
		if err != nil {
			return fmt.Errorf("listing roles of %q: %w", update.Key, err)
		}

		additions, removals := diffRoles(rolesOf(update.Desired), catalogRoles, assigned)
		if len(additions) > 0 {
			if err := catalog.AssignRoles(ctx, update.Actual, additions); err != nil {
				return fmt.Errorf("assigning roles to %q: %w", update.Key, err)
			}
		}
		if len(removals) > 0 {
			if err := catalog.RemoveRoles(ctx, update.Actual, removals); err != nil {
				return fmt.Errorf("removing roles from %q: %w", update.Key, err)
			}
		}
		if len(additions) > 0 || len(removals) > 0 {
			logger.Info("roles updated",
				"user", update.Key,
				"added", len(additions),
				"removed", len(removals),
			)
		}
	}
	return nil
}

// diffRoles computes assignment changes for one user. Additions follow
// catalog order; removals follow assignment order. Desired names
// absent from the catalog are ignored (the catalog phase creates them
// on the next pass at the latest).
func diffRoles(desiredNames []string, catalog, assigned []Role) (additions, removals []Role) {
	want := make(map[string]bool, len(desiredNames))
	for _, name := range desiredNames {
		want[name] = true
	}
	has := make(map[string]bool, len(assigned))
	for _, role := range assigned {
		has[role.Name] = true
	}

	for _, role := range catalog {
		if want[role.Name] && !has[role.Name] {
			additions = append(additions, role)
		}
	}
	for _, role := range assigned {
		if !want[role.Name] {
			removals = append(removals, role)
		}
	}
	return additions, removals
}
