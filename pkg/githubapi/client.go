// Package githubapi is a paging, throttled reader over the GitHub REST API.
package githubapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize          = 100
	DefaultPageDelay         = 100 * time.Millisecond
	DefaultMaxCommits        = 2000
	DefaultDetailConcurrency = 8
	DefaultMaxQuotaWait      = 15 * time.Minute
)

// Config tunes paging and throttling. The zero value uses the defaults.
type Config struct {
	// BaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	BaseURL string
	// PageSize is the per_page value. A page shorter than this ends a listing.
	PageSize int
	// PageDelay is waited before every continuation page. Negative disables it.
	PageDelay time.Duration
	// Limiter, when set, is waited on before every request.
	Limiter *rate.Limiter
	// DetailConcurrency bounds concurrent organization and profile detail fetches.
	DetailConcurrency int
	// MaxQuotaWait caps the pause taken when a response reports an exhausted quota.
	MaxQuotaWait time.Duration
	// HTTPClient is the base client wrapped with the token transport.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client reads one account's data with one access token.
type Client struct {
	gh                *github.Client
	pageSize          int
	pageDelay         time.Duration
	limiter           *rate.Limiter
	detailConcurrency int
	maxQuotaWait      time.Duration
	logger            *slog.Logger
}

// New creates a Client authenticated with token.
func New(token string, cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if token != "" {
		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	gh := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		gh.BaseURL = u
	}

	c := &Client{
		gh:                gh,
		pageSize:          cfg.PageSize,
		pageDelay:         cfg.PageDelay,
		limiter:           cfg.Limiter,
		detailConcurrency: cfg.DetailConcurrency,
		maxQuotaWait:      cfg.MaxQuotaWait,
		logger:            cfg.Logger,
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	switch {
	case c.pageDelay == 0:
		c.pageDelay = DefaultPageDelay
	case c.pageDelay < 0:
		c.pageDelay = 0
	}
	if c.detailConcurrency <= 0 {
		c.detailConcurrency = DefaultDetailConcurrency
	}
	if c.maxQuotaWait <= 0 {
		c.maxQuotaWait = DefaultMaxQuotaWait
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// UserInfo returns the authenticated user. Any failure is an IdentityError.
func (c *Client) UserInfo(ctx context.Context) (*github.User, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, &IdentityError{Op: "get authenticated user", Err: err}
	}
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, &IdentityError{Op: "get authenticated user", Err: err}
	}
	return user, nil
}

// RateLimit reports the core REST quota for the token.
func (c *Client) RateLimit(ctx context.Context) (*github.Rate, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	if limits.Core == nil {
		return &github.Rate{}, nil
	}
	return limits.Core, nil
}
