// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"reflect"
	"testing"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"both names", User{FirstName: "Jane", LastName: "Doe"}, "Jane Doe"},
		{"first only", User{FirstName: "Jane"}, "Jane"},
		{"last only", User{LastName: "Doe"}, "Doe"},
		{"neither", User{}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.user.DisplayName(); got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestRoleNames(t *testing.T) {
	users := Users{
		"a": {Identifier: "a", Roles: []string{"CS - Admin", "CS"}},
		"b": {Identifier: "b", Roles: []string{"CS", "Physik"}},
	}
	want := []string{"CS", "CS - Admin", "Physik"}
	if got := users.RoleNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIdentifiers(t *testing.T) {
	users := Users{"zz": {}, "aa": {}, "mm": {}}
	want := []string{"aa", "mm", "zz"}
	if got := users.Identifiers(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFingerprint(t *testing.T) {
	users := Users{
		"jdoe": {Identifier: "jdoe", FirstName: "Jane", Roles: []string{"CS"}, Enabled: true},
	}

	first, err := users.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}

	second, err := users.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if first != second {
		t.Error("fingerprint is not deterministic")
	}

	changed := Users{
		"jdoe": {Identifier: "jdoe", FirstName: "Jane", Roles: []string{"CS", "CS - Admin"}, Enabled: true},
	}
	third, err := changed.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if third == first {
		t.Error("fingerprint did not change with the desired state")
	}
}
