// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/astahhu/nutzerverwaltungstool/lib/netutil"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// URL is the base URL of the Nextcloud instance
	// (e.g., "https://cloud.asta.hhu.de").
	URL string
	// Username authenticates the OCS requests.
	Username string
	// Password is the account or app password. Borrowed, not closed.
	Password *secret.Buffer
	// TableID selects the table.
	TableID int64
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Client fetches the schema and rows of one Nextcloud table.
type Client struct {
	baseURL    string
	username   string
	password   *secret.Buffer
	tableID    int64
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the configured table.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("tables: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("tables: invalid URL %q: %w", config.URL, err)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("tables: Username is required")
	}
	if config.Password == nil {
		return nil, fmt.Errorf("tables: Password is required")
	}
	if config.TableID <= 0 {
		return nil, fmt.Errorf("tables: TableID must be positive, got %d", config.TableID)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.URL, "/"),
		username:   config.Username,
		password:   config.Password,
		tableID:    config.TableID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Schema fetches the table schema via the OCS API.
func (c *Client) Schema(ctx context.Context) (*Schema, error) {
	path := fmt.Sprintf("/ocs/v2.php/apps/tables/api/2/tables/scheme/%d", c.tableID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("tables: fetching schema: %w", err)
	}

	// OCS wraps payloads in {"ocs": {"meta": ..., "data": ...}}.
	var envelope struct {
		OCS struct {
			Data Schema `json:"data"`
		} `json:"ocs"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("tables: parsing schema response: %w", err)
	}
	return &envelope.OCS.Data, nil
}

// Rows fetches all rows of the table.
func (c *Client) Rows(ctx context.Context) ([]RawRow, error) {
	path := fmt.Sprintf("/index.php/apps/tables/api/1/tables/%d/rows", c.tableID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("tables: fetching rows: %w", err)
	}

	var rows []RawRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("tables: parsing rows response: %w", err)
	}
	return rows, nil
}

// Fetch retrieves schema and rows and decodes the rows. This is the
// one-call entry point for the sync pipeline.
func (c *Client) Fetch(ctx context.Context) ([]Row, error) {
	schema, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.Rows(ctx)
	if err != nil {
		return nil, err
	}

	decoded := Decode(schema, rows)
	c.logger.Debug("table fetched",
		"table", schema.Title,
		"columns", len(schema.Columns),
		"rows", len(decoded),
	)
	return decoded, nil
}

// doRequest performs an authenticated OCS request and returns the
// response body. Non-2xx responses become an *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	// Required by Nextcloud for any OCS API call; requests without it
	// get an HTML login page instead of JSON.
	request.Header.Set("OCS-APIRequest", "true")
	request.SetBasicAuth(c.username, c.password.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: response.StatusCode,
			Body:       netutil.Excerpt(netutil.ErrorBody(response.Body), 512),
		}
	}

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// APIError is a non-2xx response from the Nextcloud instance.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
