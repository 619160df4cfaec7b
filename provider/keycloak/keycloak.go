// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package keycloak converges users and realm roles of a Keycloak
// realm. Accounts are matched by username; realm roles realize the
// directory's role names.
package keycloak

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

	"golang.org/x/oauth2"

	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/lib/netutil"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
	"github.com/astahhu/nutzerverwaltungstool/provider"
	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

const defaultClientID = "admin-cli"

// pageSize is the page length for admin list endpoints. Keycloak caps
// unpaged listings at 100 records, so paging is not optional.
const pageSize = 100

// Config holds configuration for creating a Provider.
type Config struct {
	// URL is the base URL of the Keycloak server (e.g.
	// "https://login.example.org").
	URL string
	// Realm is the realm whose users and roles are managed.
	Realm string
	// Username and Password authenticate the admin account via the
	// password grant against the master realm.
	Username string
	Password *secret.Buffer
	// ClientID is the OAuth2 client for the password grant. If empty,
	// "admin-cli" is used.
	ClientID string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Provider manages one Keycloak realm.
type Provider struct {
	baseURL    string
	realm      string
	username   string
	password   *secret.Buffer
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger

	tokens oauth2.TokenSource
}

var _ provider.Service = (*Provider)(nil)

// New creates a Provider for one realm.
func New(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("keycloak: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("keycloak: invalid URL %q: %w", config.URL, err)
	}
	if config.Realm == "" {
		return nil, fmt.Errorf("keycloak: Realm is required")
	}
	if config.Username == "" {
		return nil, fmt.Errorf("keycloak: Username is required")
	}
	if config.Password == nil {
		return nil, fmt.Errorf("keycloak: Password is required")
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = defaultClientID
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
		baseURL:    strings.TrimRight(config.URL, "/"),
		realm:      config.Realm,
		username:   config.Username,
		password:   config.Password,
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name implements provider.Service.
func (p *Provider) Name() string { return "keycloak" }

// Ping implements provider.Service. Fetching one account page proves
// the password grant and admin API access.
func (p *Provider) Ping(ctx context.Context) error {
	query := url.Values{
		"first": {"0"},
		"max":   {"1"},
	}
	if _, err := p.doRequest(ctx, http.MethodGet, p.realmPath("/users"), query, nil); err != nil {
		return fmt.Errorf("keycloak: ping: %w", err)
	}
	return nil
}

// user is Keycloak's admin API representation of an account. Only the
// fields the sync writes are mapped.
type user struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Enabled   bool   `json:"enabled"`
}

func userKey(u user) string { return u.Username }

// Plan implements provider.Service.
func (p *Provider) Plan(ctx context.Context, users directory.Users) (*reconcile.Summary, error) {
	actual, err := p.listUsers(ctx)
	if err != nil {
		return nil, err
	}

	summary := reconcile.Compute(users, actual, userKey).Summary()
	summary.Backend = p.Name()

	catalog, err := p.Roles(ctx)
	if err != nil {
		return nil, err
	}
	summary.NewRoles = reconcile.MissingRoles(catalog, users.RoleNames())

	return summary, nil
}

// Sync implements provider.Service. Account convergence runs first,
// then the realm role catalog and the role assignments of matched
// accounts.
func (p *Provider) Sync(ctx context.Context, users directory.Users) error {
	actual, err := p.listUsers(ctx)
	if err != nil {
		return err
	}

	plan := reconcile.Compute(users, actual, userKey)
	err = plan.Apply(ctx, reconcile.Actions[directory.User, user]{
		Create: p.createUser,
		Update: p.updateUser,
		Delete: p.deleteUser,
	})
	if err != nil {
		return fmt.Errorf("keycloak: %w", err)
	}

	err = reconcile.SyncRoles(ctx, p.logger, p, users, plan.Updates,
		func(d directory.User) []string { return d.Roles })
	if err != nil {
		return fmt.Errorf("keycloak: %w", err)
	}
	return nil
}

// listUsers fetches every account of the realm.
func (p *Provider) listUsers(ctx context.Context) ([]user, error) {
	var all []user
	for first := 0; ; first += pageSize {
		query := url.Values{
			"first": {strconv.Itoa(first)},
			"max":   {strconv.Itoa(pageSize)},
		}
		body, err := p.doRequest(ctx, http.MethodGet, p.realmPath("/users"), query, nil)
		if err != nil {
			return nil, fmt.Errorf("keycloak: listing users: %w", err)
		}

		var page []user
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("keycloak: parsing user list: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	p.logger.Debug("fetched keycloak users", "realm", p.realm, "count", len(all))
	return all, nil
}

func (p *Provider) createUser(ctx context.Context, pending reconcile.Pending[directory.User]) error {
	body := user{
		Username:  pending.Key,
		FirstName: pending.Desired.FirstName,
		LastName:  pending.Desired.LastName,
		Email:     pending.Desired.Email,
		Enabled:   pending.Desired.Enabled,
	}
	if _, err := p.doRequest(ctx, http.MethodPost, p.realmPath("/users"), nil, body); err != nil {
		return err
	}
	p.logger.Info("created user", "backend", p.Name(), "username", pending.Key)
	return nil
}

// updateUser overwrites the account's profile fields. The remote ID
// and username are kept; everything else comes from the directory.
func (p *Provider) updateUser(ctx context.Context, match reconcile.Match[directory.User, user]) error {
	body := user{
		Username:  match.Actual.Username,
		FirstName: match.Desired.FirstName,
		LastName:  match.Desired.LastName,
		Email:     match.Desired.Email,
		Enabled:   match.Desired.Enabled,
	}
	path := p.realmPath("/users/" + url.PathEscape(match.Actual.ID))
	if _, err := p.doRequest(ctx, http.MethodPut, path, nil, body); err != nil {
		return err
	}
	p.logger.Info("updated user", "backend", p.Name(), "username", match.Key)
	return nil
}

func (p *Provider) deleteUser(ctx context.Context, stale reconcile.Stale[user]) error {
	path := p.realmPath("/users/" + url.PathEscape(stale.Actual.ID))
	if _, err := p.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	p.logger.Info("deleted user", "backend", p.Name(), "username", stale.Key)
	return nil
}

func (p *Provider) realmPath(suffix string) string {
	return "/admin/realms/" + url.PathEscape(p.realm) + suffix
}

// tokenSource performs the password grant on first use and returns a
// self-refreshing source after that. Admin access tokens are
// short-lived, so a long sync may cross an expiry boundary.
func (p *Provider) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if p.tokens != nil {
		return p.tokens, nil
	}

	grant := &oauth2.Config{
		ClientID: p.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL: p.baseURL + "/realms/master/protocol/openid-connect/token",
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := grant.PasswordCredentialsToken(ctx, p.username, p.password.String())
	if err != nil {
		return nil, fmt.Errorf("keycloak: password grant for %q: %w", p.username, err)
	}

	p.tokens = grant.TokenSource(ctx, token)
	return p.tokens, nil
}

// APIError is a non-2xx response from the Keycloak admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keycloak: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (p *Provider) doRequest(ctx context.Context, method, path string, query url.Values, requestBody any) ([]byte, error) {
	source, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("keycloak: refreshing admin token: %w", err)
	}

	requestURL := p.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("keycloak: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("keycloak: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	token.SetAuthHeader(request)

	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("keycloak: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("keycloak: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		StatusCode: response.StatusCode,
		Body:       netutil.Excerpt(string(responseBody), 512),
	}
}
