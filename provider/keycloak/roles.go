// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

// realmRole is the admin API wire form of a realm role. Role mapping
// writes must send both the id and the name; Keycloak rejects entries
// with only one of them.
type realmRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var _ reconcile.Catalog[user] = (*Provider)(nil)

// Roles implements reconcile.Catalog with the realm's role list.
func (p *Provider) Roles(ctx context.Context) ([]reconcile.Role, error) {
	var all []realmRole
	for first := 0; ; first += pageSize {
		query := url.Values{
			"first": {strconv.Itoa(first)},
			"max":   {strconv.Itoa(pageSize)},
		}
		body, err := p.doRequest(ctx, http.MethodGet, p.realmPath("/roles"), query, nil)
		if err != nil {
			return nil, fmt.Errorf("keycloak: listing realm roles: %w", err)
		}

		var page []realmRole
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("keycloak: parsing realm role list: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	return fromWireRoles(all), nil
}

// CreateRole implements reconcile.Catalog.
func (p *Provider) CreateRole(ctx context.Context, name string) error {
	body := map[string]string{"name": name}
	if _, err := p.doRequest(ctx, http.MethodPost, p.realmPath("/roles"), nil, body); err != nil {
		return fmt.Errorf("keycloak: creating realm role: %w", err)
	}
	return nil
}

// UserRoles implements reconcile.Catalog with the account's realm-level
// role mappings. Client roles are out of scope.
func (p *Provider) UserRoles(ctx context.Context, u user) ([]reconcile.Role, error) {
	body, err := p.doRequest(ctx, http.MethodGet, p.roleMappingPath(u), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("keycloak: listing role mappings: %w", err)
	}

	var assigned []realmRole
	if err := json.Unmarshal(body, &assigned); err != nil {
		return nil, fmt.Errorf("keycloak: parsing role mappings: %w", err)
	}
	return fromWireRoles(assigned), nil
}

// AssignRoles implements reconcile.Catalog.
func (p *Provider) AssignRoles(ctx context.Context, u user, roles []reconcile.Role) error {
	if _, err := p.doRequest(ctx, http.MethodPost, p.roleMappingPath(u), nil, toWireRoles(roles)); err != nil {
		return fmt.Errorf("keycloak: adding role mappings: %w", err)
	}
	return nil
}

// RemoveRoles implements reconcile.Catalog. The admin API takes the
// roles to withdraw as the DELETE request body.
func (p *Provider) RemoveRoles(ctx context.Context, u user, roles []reconcile.Role) error {
	if _, err := p.doRequest(ctx, http.MethodDelete, p.roleMappingPath(u), nil, toWireRoles(roles)); err != nil {
		return fmt.Errorf("keycloak: removing role mappings: %w", err)
	}
	return nil
}

func (p *Provider) roleMappingPath(u user) string {
	return p.realmPath("/users/" + url.PathEscape(u.ID) + "/role-mappings/realm")
}

func fromWireRoles(wire []realmRole) []reconcile.Role {
	roles := make([]reconcile.Role, len(wire))
	for i, role := range wire {
		roles[i] = reconcile.Role{ID: role.ID, Name: role.Name}
	}
	return roles
}

func toWireRoles(roles []reconcile.Role) []realmRole {
	wire := make([]realmRole, len(roles))
	for i, role := range roles {
		wire[i] = realmRole{ID: role.ID, Name: role.Name}
	}
	return wire
}
