// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitlab converges the membership of one GitLab group.
//
// Unlike the identity backends, GitLab does not mirror the whole
// directory: only users holding the configured owner or maintainer
// role belong to the group carrying the infrastructure repositories.
// Everyone else never appears, and members who lost the role are
// removed. Accounts themselves are not created here; they come from
// SSO, so usernames that GitLab cannot resolve yet are skipped with a
// warning and picked up on a later run.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

// GitLab access levels for group membership.
const (
	maintainerAccess = 40
	ownerAccess      = 50
)

const perPage = 100

// Config holds configuration for creating a Provider.
type Config struct {
	// URL is the base URL of the GitLab instance (e.g.
	// "https://git.example.org").
	URL string
	// Token is a personal or group access token with owner access to
	// the managed group.
	Token *secret.Buffer
	// GroupID is the numeric ID of the managed group.
	GroupID int64
	// OwnerRole grants owner access; MaintainerRole grants maintainer
	// access. A user holding both gets owner access.
	OwnerRole      string
	MaintainerRole string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Provider manages the membership of one GitLab group.
type Provider struct {
	baseURL        string
	token          *secret.Buffer
	groupID        int64
	ownerRole      string
	maintainerRole string
	httpClient     *http.Client
	logger         *slog.Logger
}

var _ provider.Service = (*Provider)(nil)

// New creates a Provider.
func New(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("gitlab: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("gitlab: invalid URL %q: %w", config.URL, err)
	}
	if config.Token == nil {
		return nil, fmt.Errorf("gitlab: Token is required")
	}
	if config.GroupID <= 0 {
		return nil, fmt.Errorf("gitlab: GroupID is required")
	}
	if config.OwnerRole == "" {
		return nil, fmt.Errorf("gitlab: OwnerRole is required")
	}
	if config.MaintainerRole == "" {
		return nil, fmt.Errorf("gitlab: MaintainerRole is required")
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
		baseURL:        strings.TrimRight(config.URL, "/") + "/api/v4",
		token:          config.Token,
		groupID:        config.GroupID,
		ownerRole:      config.OwnerRole,
		maintainerRole: config.MaintainerRole,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// Name implements provider.Service.
func (p *Provider) Name() string { return "gitlab" }

// Ping implements provider.Service. Fetching one member page proves
// the token and that the managed group exists.
func (p *Provider) Ping(ctx context.Context) error {
	query := url.Values{
		"page":     {"1"},
		"per_page": {"1"},
	}
	if _, err := p.doRequest(ctx, http.MethodGet, p.membersPath(), query, nil); err != nil {
		return fmt.Errorf("gitlab: ping: %w", err)
	}
	return nil
}

// membership is the desired record: the resolved GitLab user ID plus
// the access level derived from the directory roles.
type membership struct {
	UserID      int64
	AccessLevel int
}

// groupMember is GitLab's representation of a group member. The member
// ID is the user ID.
type groupMember struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
}

func memberKey(m groupMember) string { return m.Username }

// Plan implements provider.Service.
func (p *Provider) Plan(ctx context.Context, users directory.Users) (*reconcile.Summary, error) {
	desired, err := p.desiredMembers(ctx, users)
	if err != nil {
		return nil, err
	}
	actual, err := p.listMembers(ctx)
	if err != nil {
		return nil, err
	}

	summary := reconcile.Compute(desired, actual, memberKey).Summary()
	summary.Backend = p.Name()
	return summary, nil
}

// Sync implements provider.Service.
func (p *Provider) Sync(ctx context.Context, users directory.Users) error {
	desired, err := p.desiredMembers(ctx, users)
	if err != nil {
		return err
	}
	actual, err := p.listMembers(ctx)
	if err != nil {
		return err
	}

	plan := reconcile.Compute(desired, actual, memberKey)
	err = plan.Apply(ctx, reconcile.Actions[membership, groupMember]{
		Create: p.addMember,
		Update: p.editMember,
		Delete: p.removeMember,
	})
	if err != nil {
		return fmt.Errorf("gitlab: %w", err)
	}
	return nil
}

// desiredMembers derives the desired group membership: every user
// holding the owner or maintainer role, resolved to a GitLab user ID.
// Unresolvable usernames are skipped with a warning.
func (p *Provider) desiredMembers(ctx context.Context, users directory.Users) (map[string]membership, error) {
	desired := make(map[string]membership)
	for _, identifier := range users.Identifiers() {
		user := users[identifier]
		if !user.HasRole(p.ownerRole) && !user.HasRole(p.maintainerRole) {
			continue
		}

		userID, err := p.resolveUser(ctx, identifier)
		if err != nil {
			p.logger.Warn("skipping unresolvable gitlab user",
				"username", identifier, "error", err)
			continue
		}

		desired[identifier] = membership{
			UserID:      userID,
			AccessLevel: p.accessLevelFor(user),
		}
	}
	return desired, nil
}

func (p *Provider) accessLevelFor(user directory.User) int {
	if user.HasRole(p.ownerRole) {
		return ownerAccess
	}
	return maintainerAccess
}

// errUnknownUser reports a username without a GitLab account.
var errUnknownUser = errors.New("no such user")

// resolveUser looks up the GitLab user ID for a username.
func (p *Provider) resolveUser(ctx context.Context, username string) (int64, error) {
	query := url.Values{"username": {username}}
	body, err := p.doRequest(ctx, http.MethodGet, "/users", query, nil)
	if err != nil {
		return 0, err
	}

	var matches []groupMember
	if err := json.Unmarshal(body, &matches); err != nil {
		return 0, fmt.Errorf("parsing user lookup: %w", err)
	}
	if len(matches) == 0 {
		return 0, errUnknownUser
	}
	return matches[0].ID, nil
}

// listMembers fetches the group's direct members.
func (p *Provider) listMembers(ctx context.Context) ([]groupMember, error) {
	var all []groupMember
	for page := 1; ; page++ {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}
		body, err := p.doRequest(ctx, http.MethodGet, p.membersPath(), query, nil)
		if err != nil {
			return nil, fmt.Errorf("gitlab: listing group members: %w", err)
		}

		var members []groupMember
		if err := json.Unmarshal(body, &members); err != nil {
			return nil, fmt.Errorf("gitlab: parsing member list: %w", err)
		}
		all = append(all, members...)
		if len(members) < perPage {
			break
		}
	}
	p.logger.Debug("fetched gitlab group members", "group", p.groupID, "count", len(all))
	return all, nil
}

func (p *Provider) addMember(ctx context.Context, pending reconcile.Pending[membership]) error {
	body := map[string]int64{
		"user_id":      pending.Desired.UserID,
		"access_level": int64(pending.Desired.AccessLevel),
	}
	if _, err := p.doRequest(ctx, http.MethodPost, p.membersPath(), nil, body); err != nil {
		return err
	}
	p.logger.Info("added group member",
		"backend", p.Name(), "username", pending.Key, "access_level", pending.Desired.AccessLevel)
	return nil
}

// editMember overwrites the member's access level, whether or not it
// changed.
func (p *Provider) editMember(ctx context.Context, match reconcile.Match[membership, groupMember]) error {
	body := map[string]int64{"access_level": int64(match.Desired.AccessLevel)}
	path := p.membersPath() + "/" + strconv.FormatInt(match.Actual.ID, 10)
	if _, err := p.doRequest(ctx, http.MethodPut, path, nil, body); err != nil {
		return err
	}
	p.logger.Info("updated group member",
		"backend", p.Name(), "username", match.Key, "access_level", match.Desired.AccessLevel)
	return nil
}

func (p *Provider) removeMember(ctx context.Context, stale reconcile.Stale[groupMember]) error {
	path := p.membersPath() + "/" + strconv.FormatInt(stale.Actual.ID, 10)
	if _, err := p.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	p.logger.Info("removed group member", "backend", p.Name(), "username", stale.Key)
	return nil
}

func (p *Provider) membersPath() string {
	return "/groups/" + strconv.FormatInt(p.groupID, 10) + "/members"
}

// APIError is a non-2xx response from the GitLab API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab: unexpected status %d: %s", e.StatusCode, e.Body)
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
			return nil, fmt.Errorf("gitlab: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("gitlab: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("PRIVATE-TOKEN", p.token.String())

	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("gitlab: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("gitlab: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		StatusCode: response.StatusCode,
		Body:       netutil.Excerpt(string(responseBody), 512),
	}
}
