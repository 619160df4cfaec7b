// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileUser is the on-disk user record. All fields are optional except
// that the surrounding map key provides the identifier; enabled
// defaults to true when absent.
type fileUser struct {
	FirstName string   `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	Email     string   `json:"email,omitempty" yaml:"email,omitempty"`
	MatrixID  string   `json:"matrix_id,omitempty" yaml:"matrix_id,omitempty"`
	Roles     []string `json:"roles" yaml:"roles"`
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// LoadFile reads a users file: a map of identifier to user record,
// JSON by default, YAML when the path ends in .yaml or .yml. A missing
// email derives from the mapping's mail domain.
func LoadFile(path string, mapping Mapping) (Users, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	records := make(map[string]fileUser)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing users file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing users file %s: %w", path, err)
		}
	}

	users := make(Users, len(records))
	for identifier, record := range records {
		if identifier == "" {
			return nil, fmt.Errorf("users file %s: empty identifier key", path)
		}
		user := User{
			Identifier: identifier,
			FirstName:  record.FirstName,
			LastName:   record.LastName,
			Email:      record.Email,
			MatrixID:   record.MatrixID,
			Roles:      record.Roles,
			Enabled:    true,
		}
		if record.Enabled != nil {
			user.Enabled = *record.Enabled
		}
		if user.Email == "" {
			user.Email = identifier + "@" + mapping.EmailDomain
		}
		if user.Roles == nil {
			user.Roles = []string{}
		}
		users[identifier] = user
	}
	return users, nil
}

// EncodeFile renders users in the on-disk format LoadFile reads: a map
// of identifier to record, as indented JSON or YAML. Enabled is only
// written for disabled users, matching the load-time default.
func EncodeFile(users Users, format string) ([]byte, error) {
	records := make(map[string]fileUser, len(users))
	for identifier, user := range users {
		record := fileUser{
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			MatrixID:  user.MatrixID,
			Roles:     user.Roles,
		}
		if !user.Enabled {
			disabled := false
			record.Enabled = &disabled
		}
		records[identifier] = record
	}

	switch format {
	case "json":
		encoded, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding users: %w", err)
		}
		return append(encoded, '\n'), nil
	case "yaml":
		encoded, err := yaml.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("encoding users: %w", err)
		}
		return encoded, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
