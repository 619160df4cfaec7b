// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix converges Matrix accounts on a Synapse homeserver
// through the Synapse admin API.
//
// Accounts are keyed by full Matrix user ID. A directory user maps to
// the configured matrix_id override or to @<identifier>:<server_name>.
// Creation and profile updates go through the v2 user endpoint; login
// itself is handled by the homeserver's SSO integration. Stale and
// disabled accounts are deactivated, not erased, so their message
// history stays intact. Server admin accounts are left alone.
package matrix

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
	// URL is the base URL of the Synapse homeserver (e.g.
	// "https://matrix.example.org").
	URL string
	// ServerName is the homeserver's server_name, the domain part of
	// user IDs. It can differ from the URL host.
	ServerName string
	// Token is an access token of a server admin account.
	Token *secret.Buffer
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Provider manages the accounts of one Synapse homeserver.
type Provider struct {
	baseURL    string
	serverName string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

var _ provider.Service = (*Provider)(nil)

// New creates a Provider.
func New(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("matrix: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("matrix: invalid URL %q: %w", config.URL, err)
	}
	if config.ServerName == "" {
		return nil, fmt.Errorf("matrix: ServerName is required")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("matrix: Token is required")
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
		serverName: config.ServerName,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name implements provider.Service.
func (p *Provider) Name() string { return "matrix" }

// Ping implements provider.Service. Fetching one account page proves
// the token carries server admin rights; unauthenticated endpoints
// like server_version would not.
func (p *Provider) Ping(ctx context.Context) error {
	query := url.Values{
		"from":   {"0"},
		"limit":  {"1"},
		"guests": {"false"},
	}
	if _, err := p.doRequest(ctx, http.MethodGet, "/_synapse/admin/v2/users", query, nil); err != nil {
		return fmt.Errorf("matrix: ping: %w", err)
	}
	return nil
}

// synapseUser is the admin API's account record.
type synapseUser struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayname"`
	Admin       bool   `json:"admin"`
	Deactivated bool   `json:"deactivated"`
}

func synapseKey(u synapseUser) string { return u.Name }

// UserID returns the Matrix user ID a directory user maps to: the
// matrix_id override when set, otherwise derived from the identifier.
// Localparts are lowercase per the Matrix grammar.
func (p *Provider) UserID(identifier string, user directory.User) string {
	if user.MatrixID != "" {
		return user.MatrixID
	}
	return "@" + strings.ToLower(identifier) + ":" + p.serverName
}

// desiredAccounts keys the directory by Matrix user ID. Disabled users
// are left out; their accounts deactivate as stale.
func (p *Provider) desiredAccounts(users directory.Users) map[string]directory.User {
	desired := make(map[string]directory.User, len(users))
	for identifier, user := range users {
		if !user.Enabled {
			continue
		}
		desired[p.UserID(identifier, user)] = user
	}
	return desired
}

// Plan implements provider.Service.
func (p *Provider) Plan(ctx context.Context, users directory.Users) (*reconcile.Summary, error) {
	actual, err := p.listAccounts(ctx)
	if err != nil {
		return nil, err
	}

	summary := reconcile.Compute(p.desiredAccounts(users), actual, synapseKey).Summary()
	summary.Backend = p.Name()
	return summary, nil
}

// Sync implements provider.Service.
func (p *Provider) Sync(ctx context.Context, users directory.Users) error {
	actual, err := p.listAccounts(ctx)
	if err != nil {
		return err
	}

	plan := reconcile.Compute(p.desiredAccounts(users), actual, synapseKey)
	err = plan.Apply(ctx, reconcile.Actions[directory.User, synapseUser]{
		Create: p.createAccount,
		Update: p.updateAccount,
		Delete: p.deactivateAccount,
	})
	if err != nil {
		return fmt.Errorf("matrix: %w", err)
	}
	return nil
}

// listAccounts fetches the homeserver's active non-admin accounts.
// Deactivated accounts are excluded by the endpoint's default filter;
// admin accounts are excluded here so the sync never touches them.
func (p *Provider) listAccounts(ctx context.Context) ([]synapseUser, error) {
	var all []synapseUser
	from := "0"
	for {
		query := url.Values{
			"from":   {from},
			"limit":  {strconv.Itoa(pageSize)},
			"guests": {"false"},
		}
		body, err := p.doRequest(ctx, http.MethodGet, "/_synapse/admin/v2/users", query, nil)
		if err != nil {
			return nil, fmt.Errorf("matrix: listing accounts: %w", err)
		}

		var page struct {
			Users     []synapseUser `json:"users"`
			NextToken string        `json:"next_token"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("matrix: parsing account list: %w", err)
		}

		for _, u := range page.Users {
			if u.Admin {
				continue
			}
			all = append(all, u)
		}
		if page.NextToken == "" {
			break
		}
		from = page.NextToken
	}
	p.logger.Debug("fetched matrix accounts", "count", len(all))
	return all, nil
}

func (p *Provider) createAccount(ctx context.Context, pending reconcile.Pending[directory.User]) error {
	if err := p.putAccount(ctx, pending.Key, pending.Desired); err != nil {
		return err
	}
	p.logger.Info("created account", "backend", p.Name(), "user_id", pending.Key)
	return nil
}

func (p *Provider) updateAccount(ctx context.Context, match reconcile.Match[directory.User, synapseUser]) error {
	if err := p.putAccount(ctx, match.Key, match.Desired); err != nil {
		return err
	}
	p.logger.Info("updated account", "backend", p.Name(), "user_id", match.Key)
	return nil
}

// putAccount creates or overwrites an account through the v2 user
// endpoint. The same PUT serves both; Synapse creates the account when
// the user ID is unknown.
func (p *Provider) putAccount(ctx context.Context, userID string, user directory.User) error {
	path := "/_synapse/admin/v2/users/" + url.PathEscape(userID)
	body := map[string]string{"displayname": user.DisplayName()}
	_, err := p.doRequest(ctx, http.MethodPut, path, nil, body)
	return err
}

func (p *Provider) deactivateAccount(ctx context.Context, stale reconcile.Stale[synapseUser]) error {
	path := "/_synapse/admin/v1/deactivate/" + url.PathEscape(stale.Key)
	body := map[string]bool{"erase": false}
	if _, err := p.doRequest(ctx, http.MethodPost, path, nil, body); err != nil {
		return err
	}
	p.logger.Info("deactivated account", "backend", p.Name(), "user_id", stale.Key)
	return nil
}

// APIError is a non-2xx response from the Synapse admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matrix: unexpected status %d: %s", e.StatusCode, e.Body)
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
			return nil, fmt.Errorf("matrix: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("matrix: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+p.token.String())

	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("matrix: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("matrix: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		StatusCode: response.StatusCode,
		Body:       netutil.Excerpt(string(responseBody), 512),
	}
}
