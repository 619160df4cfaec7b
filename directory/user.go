// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory defines the canonical user model: the single
// desired state that every backend is converged towards. Desired users
// come either from the Nextcloud table (Extract) or from a local users
// file (LoadFile).
package directory

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// User is one desired account. Identifier is the university account
// name ("Funktionskennung") and the reconciliation key on every
// backend.
type User struct {
	Identifier string   `json:"-" yaml:"-"`
	FirstName  string   `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	Email      string   `json:"email,omitempty" yaml:"email,omitempty"`
	MatrixID   string   `json:"matrix_id,omitempty" yaml:"matrix_id,omitempty"`
	Roles      []string `json:"roles" yaml:"roles"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
}

// DisplayName is the full name used for backend display fields.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// HasRole reports whether the user holds the named role.
func (u User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role == name {
			return true
		}
	}
	return false
}

// Users is the desired state, keyed by Identifier.
type Users map[string]User

// Identifiers returns the identifiers in sorted order.
func (u Users) Identifiers() []string {
	identifiers := make([]string, 0, len(u))
	for identifier := range u {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

// RoleNames returns the union of all desired role names, sorted.
func (u Users) RoleNames() []string {
	seen := make(map[string]struct{})
	for _, user := range u {
		for _, role := range user.Roles {
			seen[role] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fingerprint returns a BLAKE3 digest of the canonical JSON encoding,
// hex encoded. Two runs seeing the same desired state log the same
// fingerprint, which makes unexpected source changes visible across
// runs without keeping any local state.
func (u Users) Fingerprint() (string, error) {
	// encoding/json writes map keys in sorted order, so the encoding is
	// deterministic. Role order within a user is significant and
	// preserved.
	encoded, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encoding desired state: %w", err)
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
