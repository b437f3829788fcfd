// Package client talks to a running ghsync server over its HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mscno/ghsync/server"
)

var (
	ErrNotFound   = errors.New("integration not found")
	ErrInProgress = errors.New("synchronization already in progress")
)

// Record is one mirrored record as returned by the data endpoints.
type Record struct {
	Key      map[string]string `json:"key"`
	SyncedAt time.Time         `json:"syncedAt"`
	Data     json.RawMessage   `json:"data"`
}

// Page is one page of a collection listing.
type Page struct {
	Collection string   `json:"collection"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	Total      int      `json:"total"`
	Records    []Record `json:"records"`
}

// APIClient calls the ghsync HTTP API.
type APIClient struct {
	ServerURL  *url.URL
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ClientConfig holds configuration for creating a new APIClient.
type ClientConfig struct {
	ServerURL  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewAPIClient creates a new API client instance.
func NewAPIClient(config ClientConfig) (*APIClient, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	serverURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if serverURL.Scheme == "" || serverURL.Host == "" {
		return nil, fmt.Errorf("invalid server URL: %q", config.ServerURL)
	}
	return &APIClient{
		ServerURL:  serverURL,
		HTTPClient: config.HTTPClient,
		Logger:     config.Logger,
	}, nil
}

// Status fetches the connection state of an integration.
func (c *APIClient) Status(ctx context.Context, userID string) (*server.Status, error) {
	var status server.Status
	if err := c.do(ctx, http.MethodGet, "/api/github/status/"+url.PathEscape(userID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Counts fetches the number of mirrored records per collection.
func (c *APIClient) Counts(ctx context.Context, userID string) (map[string]int, error) {
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/github/sync-status/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// Resync starts a background synchronization on the server.
func (c *APIClient) Resync(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/github/resync/"+url.PathEscape(userID), nil, nil)
}

// Disconnect removes the integration and its records on the server.
func (c *APIClient) Disconnect(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/github/integration/"+url.PathEscape(userID), nil, nil)
}

// Collection fetches one page of a collection. Zero page or pageSize use the server defaults.
func (c *APIClient) Collection(ctx context.Context, collection, userID string, page, pageSize int) (*Page, error) {
	q := url.Values{"userId": {userID}}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	var out Page
	if err := c.do(ctx, http.MethodGet, "/api/data/"+url.PathEscape(collection), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.ServerURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, errorMessage(resp.Body))
	case http.StatusConflict:
		return ErrInProgress
	default:
		msg := errorMessage(resp.Body)
		c.Logger.Debug("ghsync server returned an error", "method", method, "path", path, "status", resp.StatusCode, "error", msg)
		return fmt.Errorf("server error: %s: %s", resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(raw)
}
