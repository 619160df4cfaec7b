// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/astahhu/nutzerverwaltungstool/tables"
)

func row(cells map[string]tables.Cell) tables.Row {
	return tables.Row(cells)
}

func TestExtractRowToUser(t *testing.T) {
	users := Extract([]tables.Row{row(map[string]tables.Cell{
		"Funktionskennung": tables.String("jdoe"),
		"Vorname":          tables.String("Jane"),
		"Nachname":         tables.String("Doe"),
		"Fachschaft":       tables.String("CS"),
		"Funktion":         tables.List{"Admin"},
	})}, DefaultMapping())

	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	user := users["jdoe"]
	want := User{
		Identifier: "jdoe",
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jdoe@hhu.de",
		Roles:      []string{"CS - Admin", "CS"},
		Enabled:    true,
	}
	if !reflect.DeepEqual(user, want) {
		t.Errorf("got %+v\nwant %+v", user, want)
	}
}

func TestExtractDropsIncompleteRows(t *testing.T) {
	complete := map[string]tables.Cell{
		"Funktionskennung": tables.String("jdoe"),
		"Vorname":          tables.String("Jane"),
		"Nachname":         tables.String("Doe"),
		"Fachschaft":       tables.String("CS"),
		"Funktion":         tables.List{"Admin"},
	}

	tests := []struct {
		name   string
		mutate func(map[string]tables.Cell)
	}{
		{"missing identifier", func(c map[string]tables.Cell) { delete(c, "Funktionskennung") }},
		{"empty identifier", func(c map[string]tables.Cell) { c["Funktionskennung"] = tables.String("") }},
		{"missing first name", func(c map[string]tables.Cell) { delete(c, "Vorname") }},
		{"missing last name", func(c map[string]tables.Cell) { delete(c, "Nachname") }},
		{"missing unit", func(c map[string]tables.Cell) { delete(c, "Fachschaft") }},
		{"missing roles", func(c map[string]tables.Cell) { delete(c, "Funktion") }},
		{"identifier wrong variant", func(c map[string]tables.Cell) { c["Funktionskennung"] = tables.List{"jdoe"} }},
		{"unit wrong variant", func(c map[string]tables.Cell) { c["Fachschaft"] = tables.Bool(true) }},
		{"roles wrong variant", func(c map[string]tables.Cell) { c["Funktion"] = tables.String("Admin") }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cells := make(map[string]tables.Cell, len(complete))
			for title, cell := range complete {
				cells[title] = cell
			}
			test.mutate(cells)

			users := Extract([]tables.Row{row(cells)}, DefaultMapping())
			if len(users) != 0 {
				t.Errorf("expected row to drop, got %v", users)
			}
		})
	}
}

func TestExtractEmptyBaseRoles(t *testing.T) {
	// An empty multi-select still carries the unit role.
	users := Extract([]tables.Row{row(map[string]tables.Cell{
		"Funktionskennung": tables.String("jdoe"),
		"Vorname":          tables.String("Jane"),
		"Nachname":         tables.String("Doe"),
		"Fachschaft":       tables.String("CS"),
		"Funktion":         tables.List{},
	})}, DefaultMapping())

	if got := users["jdoe"].Roles; !reflect.DeepEqual(got, []string{"CS"}) {
		t.Errorf("roles: got %v, want [CS]", got)
	}
}

func TestExtractMergesDuplicateIdentifiers(t *testing.T) {
	users := Extract([]tables.Row{
		row(map[string]tables.Cell{
			"Funktionskennung": tables.String("jdoe"),
			"Vorname":          tables.String("Jane"),
			"Nachname":         tables.String("Doe"),
			"Fachschaft":       tables.String("CS"),
			"Funktion":         tables.List{"Admin"},
		}),
		row(map[string]tables.Cell{
			"Funktionskennung": tables.String("jdoe"),
			"Vorname":          tables.String("Janet"),
			"Nachname":         tables.String("Other"),
			"Fachschaft":       tables.String("Physik"),
			"Funktion":         tables.List{"Admin"},
		}),
	}, DefaultMapping())

	if len(users) != 1 {
		t.Fatalf("expected 1 merged user, got %d", len(users))
	}
	user := users["jdoe"]
	if user.FirstName != "Jane" || user.LastName != "Doe" || user.Email != "jdoe@hhu.de" {
		t.Errorf("first row's scalars must win, got %+v", user)
	}
	wantRoles := []string{"CS - Admin", "CS", "Physik - Admin", "Physik"}
	if !reflect.DeepEqual(user.Roles, wantRoles) {
		t.Errorf("roles: got %v, want %v", user.Roles, wantRoles)
	}
}

func TestExtractCustomMapping(t *testing.T) {
	mapping := Mapping{
		IdentifierColumn: "Login",
		FirstNameColumn:  "First",
		LastNameColumn:   "Last",
		RolesColumn:      "Duties",
		UnitColumn:       "Club",
		EmailDomain:      "example.org",
	}
	users := Extract([]tables.Row{row(map[string]tables.Cell{
		"Login":  tables.String("bob"),
		"First":  tables.String("Bob"),
		"Last":   tables.String("Builder"),
		"Club":   tables.String("Chess"),
		"Duties": tables.List{"Treasurer"},
	})}, mapping)

	user := users["bob"]
	if user.Email != "bob@example.org" {
		t.Errorf("email: got %q", user.Email)
	}
	if !reflect.DeepEqual(user.Roles, []string{"Chess - Treasurer", "Chess"}) {
		t.Errorf("roles: got %v", user.Roles)
	}
}

// TestExtractFromRawTable drives the full decode-and-extract path from
// wire-shaped schema and row payloads.
func TestExtractFromRawTable(t *testing.T) {
	schemaJSON := `{
		"title": "Mitglieder",
		"columns": [
			{"id": 1, "title": "Funktionskennung", "type": "text"},
			{"id": 2, "title": "Vorname", "type": "text"},
			{"id": 3, "title": "Nachname", "type": "text"},
			{"id": 4, "title": "Fachschaft", "type": "selection", "subtype": "",
			 "selectionOptions": [{"id": 1, "label": "CS"}]},
			{"id": 5, "title": "Funktion", "type": "selection", "subtype": "multi",
			 "selectionOptions": [{"id": 1, "label": "Admin"}, {"id": 2, "label": "Finanzen"}]}
		]
	}`
	rowsJSON := `[
		{"id": 1, "data": [
			{"columnId": 1, "value": "jdoe"},
			{"columnId": 2, "value": "Jane"},
			{"columnId": 3, "value": "Doe"},
			{"columnId": 4, "value": 1},
			{"columnId": 5, "value": [1]}
		]},
		{"id": 2, "data": [
			{"columnId": 1, "value": "broken"},
			{"columnId": 2, "value": 42},
			{"columnId": 3, "value": "Row"},
			{"columnId": 4, "value": 1},
			{"columnId": 5, "value": [2]}
		]}
	]`

	var schema tables.Schema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	var rawRows []tables.RawRow
	if err := json.Unmarshal([]byte(rowsJSON), &rawRows); err != nil {
		t.Fatalf("rows: %v", err)
	}

	users := Extract(tables.Decode(&schema, rawRows), DefaultMapping())

	if len(users) != 1 {
		t.Fatalf("expected 1 user (second row lacks a first name), got %d", len(users))
	}
	want := User{
		Identifier: "jdoe",
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jdoe@hhu.de",
		Roles:      []string{"CS - Admin", "CS"},
		Enabled:    true,
	}
	if got := users["jdoe"]; !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}
