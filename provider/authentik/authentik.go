// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package authentik converges users and groups of an Authentik
// instance. Accounts are matched by username; groups realize the
// directory's role names.
package authentik

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/lib/netutil"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
	"github.com/astahhu/nutzerverwaltungstool/provider"
	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

const pageSize = 100

// Config holds configuration for creating a Provider.
type Config struct {
	// URL is the base URL of the Authentik instance (e.g.
	// "https://auth.example.org").
	URL string
	// Token is an API token with user and group management permissions.
	Token *secret.Buffer
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Provider manages the users and groups of one Authentik instance.
type Provider struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

var _ provider.Service = (*Provider)(nil)
var _ reconcile.Catalog[account] = (*Provider)(nil)

// New creates a Provider.
func New(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("authentik: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("authentik: invalid URL %q: %w", config.URL, err)
	}
	if config.Token == nil {
		return nil, fmt.Errorf("authentik: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		baseURL:    strings.TrimRight(config.URL, "/") + "/api/v3",
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name implements provider.Service.
func (p *Provider) Name() string { return "authentik" }

// Ping implements provider.Service. Fetching one account page proves
// the token and core API access.
func (p *Provider) Ping(ctx context.Context) error {
	query := url.Values{
		"page":      {"1"},
		"page_size": {"1"},
	}
	if _, err := p.doRequest(ctx, http.MethodGet, "/core/users/", query, nil); err != nil {
		return fmt.Errorf("authentik: ping: %w", err)
	}
	return nil
}

// account is Authentik's core API representation of a user. The name
// field holds the display name.
type account struct {
	PK       int64  `json:"pk,omitempty"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// group is Authentik's core API representation of a group. The pk is a
// UUID string.
type group struct {
	PK   string `json:"pk"`
	Name string `json:"name"`
}

func accountKey(a account) string { return a.Username }

// Plan implements provider.Service.
func (p *Provider) Plan(ctx context.Context, users directory.Users) (*reconcile.Summary, error) {
	actual, err := p.listAccounts(ctx)
	if err != nil {
		return nil, err
	}

	summary := reconcile.Compute(users, actual, accountKey).Summary()
	summary.Backend = p.Name()

	catalog, err := p.Roles(ctx)
	if err != nil {
		return nil, err
	}
	summary.NewRoles = reconcile.MissingRoles(catalog, users.RoleNames())

	return summary, nil
}

// Sync implements provider.Service. Accounts converge first, then the
// group catalog and the memberships of matched accounts.
func (p *Provider) Sync(ctx context.Context, users directory.Users) error {
	actual, err := p.listAccounts(ctx)
	if err != nil {
		return err
	}

	plan := reconcile.Compute(users, actual, accountKey)
	err = plan.Apply(ctx, reconcile.Actions[directory.User, account]{
		Create: p.createAccount,
		Update: p.updateAccount,
		Delete: p.deleteAccount,
	})
	if err != nil {
		return fmt.Errorf("authentik: %w", err)
	}

	err = reconcile.SyncRoles(ctx, p.logger, p, users, plan.Updates,
		func(d directory.User) []string { return d.Roles })
	if err != nil {
		return fmt.Errorf("authentik: %w", err)
	}
	return nil
}

func (p *Provider) listAccounts(ctx context.Context) ([]account, error) {
	accounts, err := listAll[account](ctx, p, "/core/users/")
	if err != nil {
		return nil, fmt.Errorf("authentik: listing users: %w", err)
	}
	p.logger.Debug("fetched authentik users", "count", len(accounts))
	return accounts, nil
}

func (p *Provider) createAccount(ctx context.Context, pending reconcile.Pending[directory.User]) error {
	body := account{
		Username: pending.Key,
		Name:     pending.Desired.DisplayName(),
		Email:    pending.Desired.Email,
		IsActive: pending.Desired.Enabled,
	}
	if _, err := p.doRequest(ctx, http.MethodPost, "/core/users/", nil, body); err != nil {
		return err
	}
	p.logger.Info("created user", "backend", p.Name(), "username", pending.Key)
	return nil
}

func (p *Provider) updateAccount(ctx context.Context, match reconcile.Match[directory.User, account]) error {
	body := account{
		Username: match.Actual.Username,
		Name:     match.Desired.DisplayName(),
		Email:    match.Desired.Email,
		IsActive: match.Desired.Enabled,
	}
	if _, err := p.doRequest(ctx, http.MethodPatch, p.accountPath(match.Actual), nil, body); err != nil {
		return err
	}
	p.logger.Info("updated user", "backend", p.Name(), "username", match.Key)
	return nil
}

func (p *Provider) deleteAccount(ctx context.Context, stale reconcile.Stale[account]) error {
	if _, err := p.doRequest(ctx, http.MethodDelete, p.accountPath(stale.Actual), nil, nil); err != nil {
		return err
	}
	p.logger.Info("deleted user", "backend", p.Name(), "username", stale.Key)
	return nil
}

func (p *Provider) accountPath(a account) string {
	return "/core/users/" + strconv.FormatInt(a.PK, 10) + "/"
}

// Roles implements reconcile.Catalog with the instance's groups.
func (p *Provider) Roles(ctx context.Context) ([]reconcile.Role, error) {
	groups, err := listAll[group](ctx, p, "/core/groups/")
	if err != nil {
		return nil, fmt.Errorf("authentik: listing groups: %w", err)
	}

	roles := make([]reconcile.Role, len(groups))
	for i, g := range groups {
		roles[i] = reconcile.Role{ID: g.PK, Name: g.Name}
	}
	return roles, nil
}

// CreateRole implements reconcile.Catalog.
func (p *Provider) CreateRole(ctx context.Context, name string) error {
	body := map[string]string{"name": name}
	if _, err := p.doRequest(ctx, http.MethodPost, "/core/groups/", nil, body); err != nil {
		return fmt.Errorf("authentik: creating group: %w", err)
	}
	return nil
}

// UserRoles implements reconcile.Catalog with the groups the account
// belongs to, read from the detail view's groups_obj field.
func (p *Provider) UserRoles(ctx context.Context, a account) ([]reconcile.Role, error) {
	body, err := p.doRequest(ctx, http.MethodGet, p.accountPath(a), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("authentik: fetching user %q: %w", a.Username, err)
	}

	var detail struct {
		Groups []group `json:"groups_obj"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("authentik: parsing user detail: %w", err)
	}

	roles := make([]reconcile.Role, len(detail.Groups))
	for i, g := range detail.Groups {
		roles[i] = reconcile.Role{ID: g.PK, Name: g.Name}
	}
	return roles, nil
}

// AssignRoles implements reconcile.Catalog. Membership changes are one
// call per group.
func (p *Provider) AssignRoles(ctx context.Context, a account, roles []reconcile.Role) error {
	for _, role := range roles {
		path := "/core/groups/" + url.PathEscape(role.ID) + "/add_user/"
		if _, err := p.doRequest(ctx, http.MethodPost, path, nil, map[string]int64{"pk": a.PK}); err != nil {
			return fmt.Errorf("authentik: adding %q to group %q: %w", a.Username, role.Name, err)
		}
	}
	return nil
}

// RemoveRoles implements reconcile.Catalog.
func (p *Provider) RemoveRoles(ctx context.Context, a account, roles []reconcile.Role) error {
	for _, role := range roles {
		path := "/core/groups/" + url.PathEscape(role.ID) + "/remove_user/"
		if _, err := p.doRequest(ctx, http.MethodPost, path, nil, map[string]int64{"pk": a.PK}); err != nil {
			return fmt.Errorf("authentik: removing %q from group %q: %w", a.Username, role.Name, err)
		}
	}
	return nil
}

// pagedResponse is Authentik's list envelope. The next page number is
// 0 on the last page.
type pagedResponse[T any] struct {
	Pagination struct {
		Next int `json:"next"`
	} `json:"pagination"`
	Results []T `json:"results"`
}

func listAll[T any](ctx context.Context, p *Provider, path string) ([]T, error) {
	var all []T
	for page := 1; ; {
		query := url.Values{
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(pageSize)},
		}
		body, err := p.doRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}

		var decoded pagedResponse[T]
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("parsing %s page %d: %w", path, page, err)
		}
		all = append(all, decoded.Results...)
		if decoded.Pagination.Next == 0 {
			break
		}
		page = decoded.Pagination.Next
	}
	return all, nil
}

// APIError is a non-2xx response from the Authentik API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authentik: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (p *Provider) doRequest(ctx context.Context, method, path string, query url.Values, requestBody any) ([]byte, error) {
	requestURL := p.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("authentik: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("authentik: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+p.token.String())

	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("authentik: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("authentik: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		StatusCode: response.StatusCode,
		Body:       netutil.Excerpt(string(responseBody), 512),
	}
}
