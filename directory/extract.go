// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"github.com/astahhu/nutzerverwaltungstool/tables"
)

// Mapping names the table columns the extractor reads and the mail
// domain appended to identifiers. The zero value is not usable; start
// from DefaultMapping.
type Mapping struct {
	IdentifierColumn string `json:"identifier_column"`
	FirstNameColumn  string `json:"first_name_column"`
	LastNameColumn   string `json:"last_name_column"`
	RolesColumn      string `json:"roles_column"`
	UnitColumn       string `json:"unit_column"`
	EmailDomain      string `json:"email_domain"`
}

// DefaultMapping returns the column titles and mail domain of the AStA
// member table.
func DefaultMapping() Mapping {
	return Mapping{
		IdentifierColumn: "Funktionskennung",
		FirstNameColumn:  "Vorname",
		LastNameColumn:   "Nachname",
		RolesColumn:      "Funktion",
		UnitColumn:       "Fachschaft",
		EmailDomain:      "hhu.de",
	}
}

// Extract builds the desired state from decoded table rows.
//
// A row yields a user only when the identifier, first name, last name,
// and unit cells are present as String and the roles cell is present as
// List; rows failing any of these are skipped entirely. Role names are
// derived from the unit: base role r becomes "<unit> - <r>", and the
// unit itself is appended as a role, so a row with unit "CS" and base
// roles ["Admin"] yields ["CS - Admin", "CS"].
//
// Rows sharing an identifier merge: the first row wins every scalar
// field, role lists concatenate in row order, duplicates retained.
func Extract(rows []tables.Row, mapping Mapping) Users {
	users := make(Users)
	for _, row := range rows {
		user, ok := extractUser(row, mapping)
		if !ok {
			continue
		}
		if existing, found := users[user.Identifier]; found {
			existing.Roles = append(existing.Roles, user.Roles...)
			users[user.Identifier] = existing
			continue
		}
		users[user.Identifier] = user
	}
	return users
}

func extractUser(row tables.Row, mapping Mapping) (User, bool) {
	identifier, ok := stringCell(row, mapping.IdentifierColumn)
	if !ok || identifier == "" {
		return User{}, false
	}
	firstName, ok := stringCell(row, mapping.FirstNameColumn)
	if !ok {
		return User{}, false
	}
	lastName, ok := stringCell(row, mapping.LastNameColumn)
	if !ok {
		return User{}, false
	}
	unit, ok := stringCell(row, mapping.UnitColumn)
	if !ok {
		return User{}, false
	}
	baseRoles, ok := listCell(row, mapping.RolesColumn)
	if !ok {
		return User{}, false
	}

	roles := make([]string, 0, len(baseRoles)+1)
	for _, role := range baseRoles {
		roles = append(roles, unit+" - "+role)
	}
	roles = append(roles, unit)

	return User{
		Identifier: identifier,
		FirstName:  firstName,
		LastName:   lastName,
		Email:      identifier + "@" + mapping.EmailDomain,
		Roles:      roles,
		Enabled:    true,
	}, true
}

func stringCell(row tables.Row, title string) (string, bool) {
	cell, ok := row[title].(tables.String)
	if !ok {
		return "", false
	}
	return string(cell), true
}

func listCell(row tables.Row, title string) ([]string, bool) {
	cell, ok := row[title].(tables.List)
	if !ok {
		return nil, false
	}
	return cell, true
}
