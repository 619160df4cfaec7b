// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/astahhu/nutzerverwaltungstool/lib/sealed"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
)

// ResolveSecret turns an inline value / file reference pair into a
// secret buffer. Exactly one of inline and file must be set (Validate
// enforces this; here it is an error too). File contents are trimmed
// of trailing whitespace; files ending in .age are decrypted with the
// configured identity file first.
//
// The caller owns the returned buffer and must Close it.
func (c *Config) ResolveSecret(name, inline, file string) (*secret.Buffer, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("%s: inline value and file reference both set", name)
	case inline != "":
		return secret.NewFromBytes([]byte(inline))
	case file != "":
		buffer, err := c.openSecretFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return buffer, nil
	default:
		return nil, fmt.Errorf("%s: no value configured", name)
	}
}

func (c *Config) openSecretFile(path string) (*secret.Buffer, error) {
	if !strings.HasSuffix(path, ".age") {
		return secret.ReadFromPath(path)
	}

	if c.IdentityFile == "" {
		return nil, fmt.Errorf("identity_file is not set, cannot decrypt %s", path)
	}
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed secret: %w", err)
	}
	identity, err := secret.ReadFromPath(c.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer identity.Close()

	return sealed.Open(ciphertext, identity)
}

// TablesPassword resolves the Nextcloud app password.
func (c *Config) TablesPassword() (*secret.Buffer, error) {
	if c.Source.Tables == nil {
		return nil, fmt.Errorf("source.tables is not configured")
	}
	return c.ResolveSecret("source.tables.password", c.Source.Tables.Password, c.Source.Tables.PasswordFile)
}

// KeycloakPassword resolves the Keycloak admin password.
func (c *Config) KeycloakPassword() (*secret.Buffer, error) {
	if c.Keycloak == nil {
		return nil, fmt.Errorf("keycloak is not configured")
	}
	return c.ResolveSecret("keycloak.password", c.Keycloak.Password, c.Keycloak.PasswordFile)
}

// AuthentikToken resolves the Authentik API token.
func (c *Config) AuthentikToken() (*secret.Buffer, error) {
	if c.Authentik == nil {
		return nil, fmt.Errorf("authentik is not configured")
	}
	return c.ResolveSecret("authentik.token", c.Authentik.Token, c.Authentik.TokenFile)
}

// GitLabToken resolves the GitLab access token.
func (c *Config) GitLabToken() (*secret.Buffer, error) {
	if c.GitLab == nil {
		return nil, fmt.Errorf("gitlab is not configured")
	}
	return c.ResolveSecret("gitlab.token", c.GitLab.Token, c.GitLab.TokenFile)
}

// MatrixToken resolves the Synapse admin access token.
func (c *Config) MatrixToken() (*secret.Buffer, error) {
	if c.Matrix == nil {
		return nil, fmt.Errorf("matrix is not configured")
	}
	return c.ResolveSecret("matrix.token", c.Matrix.Token, c.Matrix.TokenFile)
}
