// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the user
// management tool.
//
// Configuration is loaded from a single JSONC file (JSON extended
// with // line comments, /* block comments */, and trailing commas)
// specified by:
//   - NUTZERVERWALTUNGSTOOL_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// The only expansion performed on values is ${VAR} and
// ${VAR:-default} environment substitution.
//
// Credentials never appear twice: each one is either an inline value
// or a file reference, where files ending in .age are decrypted with
// the configured identity file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/astahhu/nutzerverwaltungstool/directory"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "NUTZERVERWALTUNGSTOOL_CONFIG"

// Config is the tool's configuration. Source and at least the mapping
// defaults always apply; each backend section is optional and absent
// sections leave that backend untouched.
type Config struct {
	// Source selects where the desired user directory comes from.
	Source SourceConfig `json:"source"`

	// Mapping overrides the column titles and the email domain used
	// when extracting users from a Nextcloud table. Empty fields keep
	// their defaults.
	Mapping MappingConfig `json:"mapping"`

	// IdentityFile is the path to an age identity file used to
	// decrypt .age credential files.
	IdentityFile string `json:"identity_file,omitempty"`

	Keycloak  *KeycloakConfig  `json:"keycloak,omitempty"`
	Authentik *AuthentikConfig `json:"authentik,omitempty"`
	GitLab    *GitLabConfig    `json:"gitlab,omitempty"`
	Matrix    *MatrixConfig    `json:"matrix,omitempty"`
}

// SourceConfig selects the source of truth: a Nextcloud table or a
// local users file. Exactly one must be set.
type SourceConfig struct {
	Tables *TablesConfig `json:"tables,omitempty"`

	// File is the path to a JSON or YAML users file.
	File string `json:"file,omitempty"`
}

// TablesConfig locates the Nextcloud table holding the directory.
type TablesConfig struct {
	URL          string `json:"url"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	PasswordFile string `json:"password_file,omitempty"`
	TableID      int64  `json:"table_id"`
}

// MappingConfig mirrors directory.Mapping with optional fields.
type MappingConfig struct {
	IdentifierColumn string `json:"identifier_column,omitempty"`
	FirstNameColumn  string `json:"first_name_column,omitempty"`
	LastNameColumn   string `json:"last_name_column,omitempty"`
	RolesColumn      string `json:"roles_column,omitempty"`
	UnitColumn       string `json:"unit_column,omitempty"`
	EmailDomain      string `json:"email_domain,omitempty"`
}

// KeycloakConfig configures the Keycloak backend.
type KeycloakConfig struct {
	URL          string `json:"url"`
	Realm        string `json:"realm"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	PasswordFile string `json:"password_file,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
}

// AuthentikConfig configures the Authentik backend.
type AuthentikConfig struct {
	URL       string `json:"url"`
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`
}

// GitLabConfig configures the GitLab backend.
type GitLabConfig struct {
	URL            string `json:"url"`
	Token          string `json:"token,omitempty"`
	TokenFile      string `json:"token_file,omitempty"`
	GroupID        int64  `json:"group_id"`
	OwnerRole      string `json:"owner_role"`
	MaintainerRole string `json:"maintainer_role"`
}

// MatrixConfig configures the Matrix backend.
type MatrixConfig struct {
	URL        string `json:"url"`
	ServerName string `json:"server_name"`
	Token      string `json:"token,omitempty"`
	TokenFile  string `json:"token_file,omitempty"`
}

// Load loads configuration from the NUTZERVERWALTUNGSTOOL_CONFIG
// environment variable. There are no fallbacks: if the variable is not
// set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use the --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The file is
// the single source of truth; environment variables do not override
// config values, they are only substituted into ${VAR} references.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return &cfg, nil
}

// DirectoryMapping returns the column mapping with defaults applied
// for every empty field.
func (c *Config) DirectoryMapping() directory.Mapping {
	mapping := directory.DefaultMapping()
	if c.Mapping.IdentifierColumn != "" {
		mapping.IdentifierColumn = c.Mapping.IdentifierColumn
	}
	if c.Mapping.FirstNameColumn != "" {
		mapping.FirstNameColumn = c.Mapping.FirstNameColumn
	}
	if c.Mapping.LastNameColumn != "" {
		mapping.LastNameColumn = c.Mapping.LastNameColumn
	}
	if c.Mapping.RolesColumn != "" {
		mapping.RolesColumn = c.Mapping.RolesColumn
	}
	if c.Mapping.UnitColumn != "" {
		mapping.UnitColumn = c.Mapping.UnitColumn
	}
	if c.Mapping.EmailDomain != "" {
		mapping.EmailDomain = c.Mapping.EmailDomain
	}
	return mapping
}

// Backends lists the configured backend sections by name, in the
// fixed execution order.
func (c *Config) Backends() []string {
	var names []string
	if c.Keycloak != nil {
		names = append(names, "keycloak")
	}
	if c.Authentik != nil {
		names = append(names, "authentik")
	}
	if c.GitLab != nil {
		names = append(names, "gitlab")
	}
	if c.Matrix != nil {
		names = append(names, "matrix")
	}
	return names
}

// expandVariables applies ${VAR} and ${VAR:-default} substitution to
// every string value that may carry one.
func (c *Config) expandVariables() {
	fields := []*string{
		&c.Source.File,
		&c.IdentityFile,
		&c.Mapping.EmailDomain,
	}
	if c.Source.Tables != nil {
		fields = append(fields,
			&c.Source.Tables.URL,
			&c.Source.Tables.Username,
			&c.Source.Tables.Password,
			&c.Source.Tables.PasswordFile,
		)
	}
	if c.Keycloak != nil {
		fields = append(fields,
			&c.Keycloak.URL,
			&c.Keycloak.Realm,
			&c.Keycloak.Username,
			&c.Keycloak.Password,
			&c.Keycloak.PasswordFile,
			&c.Keycloak.ClientID,
		)
	}
	if c.Authentik != nil {
		fields = append(fields,
			&c.Authentik.URL,
			&c.Authentik.Token,
			&c.Authentik.TokenFile,
		)
	}
	if c.GitLab != nil {
		fields = append(fields,
			&c.GitLab.URL,
			&c.GitLab.Token,
			&c.GitLab.TokenFile,
		)
	}
	if c.Matrix != nil {
		fields = append(fields,
			&c.Matrix.URL,
			&c.Matrix.ServerName,
			&c.Matrix.Token,
			&c.Matrix.TokenFile,
		)
	}
	for _, field := range fields {
		*field = expandVars(*field)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Source.Tables == nil && c.Source.File == "":
		errs = append(errs, fmt.Errorf("source: one of tables or file is required"))
	case c.Source.Tables != nil && c.Source.File != "":
		errs = append(errs, fmt.Errorf("source: tables and file are mutually exclusive"))
	}

	if t := c.Source.Tables; t != nil {
		if t.URL == "" {
			errs = append(errs, fmt.Errorf("source.tables.url is required"))
		}
		if t.Username == "" {
			errs = append(errs, fmt.Errorf("source.tables.username is required"))
		}
		if t.TableID <= 0 {
			errs = append(errs, fmt.Errorf("source.tables.table_id is required"))
		}
		c.validateSecretPair(&errs, "source.tables.password", t.Password, t.PasswordFile)
	}

	if k := c.Keycloak; k != nil {
		if k.URL == "" {
			errs = append(errs, fmt.Errorf("keycloak.url is required"))
		}
		if k.Realm == "" {
			errs = append(errs, fmt.Errorf("keycloak.realm is required"))
		}
		if k.Username == "" {
			errs = append(errs, fmt.Errorf("keycloak.username is required"))
		}
		c.validateSecretPair(&errs, "keycloak.password", k.Password, k.PasswordFile)
	}

	if a := c.Authentik; a != nil {
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("authentik.url is required"))
		}
		c.validateSecretPair(&errs, "authentik.token", a.Token, a.TokenFile)
	}

	if g := c.GitLab; g != nil {
		if g.URL == "" {
			errs = append(errs, fmt.Errorf("gitlab.url is required"))
		}
		if g.GroupID <= 0 {
			errs = append(errs, fmt.Errorf("gitlab.group_id is required"))
		}
		if g.OwnerRole == "" {
			errs = append(errs, fmt.Errorf("gitlab.owner_role is required"))
		}
		if g.MaintainerRole == "" {
			errs = append(errs, fmt.Errorf("gitlab.maintainer_role is required"))
		}
		c.validateSecretPair(&errs, "gitlab.token", g.Token, g.TokenFile)
	}

	if m := c.Matrix; m != nil {
		if m.URL == "" {
			errs = append(errs, fmt.Errorf("matrix.url is required"))
		}
		if m.ServerName == "" {
			errs = append(errs, fmt.Errorf("matrix.server_name is required"))
		}
		c.validateSecretPair(&errs, "matrix.token", m.Token, m.TokenFile)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateSecretPair checks an inline value / file reference pair:
// exactly one must be set, and .age references need an identity file.
func (c *Config) validateSecretPair(errs *[]error, name, inline, file string) {
	switch {
	case inline == "" && file == "":
		*errs = append(*errs, fmt.Errorf("%s or %s_file is required", name, name))
	case inline != "" && file != "":
		*errs = append(*errs, fmt.Errorf("%s and %s_file are mutually exclusive", name, name))
	}
	if strings.HasSuffix(file, ".age") && c.IdentityFile == "" {
		*errs = append(*errs, fmt.Errorf("%s_file is age-encrypted but identity_file is not set", name))
	}
}
