// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/lib/config"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
	"github.com/astahhu/nutzerverwaltungstool/provider"
	"github.com/astahhu/nutzerverwaltungstool/provider/authentik"
	"github.com/astahhu/nutzerverwaltungstool/provider/gitlab"
	"github.com/astahhu/nutzerverwaltungstool/provider/keycloak"
	"github.com/astahhu/nutzerverwaltungstool/provider/matrix"
	"github.com/astahhu/nutzerverwaltungstool/tables"
)

// configFlagVar registers the shared --config flag.
func configFlagVar(flagSet *pflag.FlagSet, path *string) {
	flagSet.StringVar(path, "config", "", "config file path (overrides $"+config.EnvVar+")")
}

// backendFlagVar registers the shared --backend subset filter.
func backendFlagVar(flagSet *pflag.FlagSet, backends *[]string) {
	flagSet.StringSliceVar(backends, "backend", nil, "limit the run to the named backends (repeatable)")
}

// loadConfig loads and validates the configuration. An empty path
// falls back to the environment variable.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := loadConfigUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigUnvalidated loads the configuration without validating it.
// The validate and doctor commands report problems themselves.
func loadConfigUnvalidated(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// describeSource renders the configured source for human output.
func describeSource(cfg *config.Config) string {
	if cfg.Source.Tables != nil {
		return fmt.Sprintf("nextcloud table %d at %s", cfg.Source.Tables.TableID, cfg.Source.Tables.URL)
	}
	return fmt.Sprintf("users file %s", cfg.Source.File)
}

// loadUsers fetches the desired directory from the configured source
// and logs its fingerprint so unexpected source changes are visible
// across runs.
func loadUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (directory.Users, error) {
	mapping := cfg.DirectoryMapping()

	var users directory.Users
	if cfg.Source.Tables != nil {
		password, err := cfg.TablesPassword()
		if err != nil {
			return nil, err
		}
		defer password.Close()

		client, err := tables.NewClient(tables.ClientConfig{
			URL:      cfg.Source.Tables.URL,
			Username: cfg.Source.Tables.Username,
			Password: password,
			TableID:  cfg.Source.Tables.TableID,
			Logger:   logger.With("component", "tables"),
		})
		if err != nil {
			return nil, err
		}
		rows, err := client.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		users = directory.Extract(rows, mapping)
	} else {
		loaded, err := directory.LoadFile(cfg.Source.File, mapping)
		if err != nil {
			return nil, err
		}
		users = loaded
	}

	fingerprint, err := users.Fingerprint()
	if err != nil {
		return nil, err
	}
	logger.Info("desired directory loaded",
		"source", describeSource(cfg),
		"users", len(users),
		"roles", len(users.RoleNames()),
		"fingerprint", fingerprint)
	return users, nil
}

// serviceSet holds the constructed backend services together with the
// secret buffers they borrow. Close zeroes the secrets; call it only
// after the services are done.
type serviceSet struct {
	services []provider.Service
	secrets  []*secret.Buffer
}

func (s *serviceSet) Close() {
	for _, buffer := range s.secrets {
		buffer.Close()
	}
}

// buildServices constructs a service per configured backend section,
// in the fixed execution order. A non-empty only list restricts the
// set to those backends; names that have no config section are an
// error rather than a silent no-op.
func buildServices(cfg *config.Config, only []string, logger *slog.Logger) (*serviceSet, error) {
	configured := cfg.Backends()
	for _, name := range only {
		if !slices.Contains(configured, name) {
			if len(configured) == 0 {
				return nil, fmt.Errorf("backend %q is not configured (no backend sections present)", name)
			}
			return nil, fmt.Errorf("backend %q is not configured (configured: %s)", name, strings.Join(configured, ", "))
		}
	}
	wanted := func(name string) bool {
		return len(only) == 0 || slices.Contains(only, name)
	}

	set := &serviceSet{}
	built := false
	defer func() {
		if !built {
			set.Close()
		}
	}()

	if cfg.Keycloak != nil && wanted("keycloak") {
		password, err := cfg.KeycloakPassword()
		if err != nil {
			return nil, err
		}
		set.secrets = append(set.secrets, password)
		service, err := keycloak.New(keycloak.Config{
			URL:      cfg.Keycloak.URL,
			Realm:    cfg.Keycloak.Realm,
			Username: cfg.Keycloak.Username,
			Password: password,
			ClientID: cfg.Keycloak.ClientID,
			Logger:   logger.With("backend", "keycloak"),
		})
		if err != nil {
			return nil, err
		}
		set.services = append(set.services, service)
	}

	if cfg.Authentik != nil && wanted("authentik") {
		token, err := cfg.AuthentikToken()
		if err != nil {
			return nil, err
		}
		set.secrets = append(set.secrets, token)
		service, err := authentik.New(authentik.Config{
			URL:    cfg.Authentik.URL,
			Token:  token,
			Logger: logger.With("backend", "authentik"),
		})
		if err != nil {
			return nil, err
		}
		set.services = append(set.services, service)
	}

	if cfg.GitLab != nil && wanted("gitlab") {
		token, err := cfg.GitLabToken()
		if err != nil {
			return nil, err
		}
		set.secrets = append(set.secrets, token)
		service, err := gitlab.New(gitlab.Config{
			URL:            cfg.GitLab.URL,
			Token:          token,
			GroupID:        cfg.GitLab.GroupID,
			OwnerRole:      cfg.GitLab.OwnerRole,
			MaintainerRole: cfg.GitLab.MaintainerRole,
			Logger:         logger.With("backend", "gitlab"),
		})
		if err != nil {
			return nil, err
		}
		set.services = append(set.services, service)
	}

	if cfg.Matrix != nil && wanted("matrix") {
		token, err := cfg.MatrixToken()
		if err != nil {
			return nil, err
		}
		set.secrets = append(set.secrets, token)
		service, err := matrix.New(matrix.Config{
			URL:        cfg.Matrix.URL,
			ServerName: cfg.Matrix.ServerName,
			Token:      token,
			Logger:     logger.With("backend", "matrix"),
		})
		if err != nil {
			return nil, err
		}
		set.services = append(set.services, service)
	}

	if len(set.services) == 0 {
		return nil, fmt.Errorf("no backends configured; add a keycloak, authentik, gitlab, or matrix section")
	}

	built = true
	return set, nil
}
