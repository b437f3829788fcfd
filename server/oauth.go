package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mscno/ghsync/pkg/auth"
	"github.com/mscno/ghsync/pkg/oauthstate"
	"github.com/mscno/ghsync/server/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultReturnPath = "/integrations"

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes defaults to auth.DefaultScopes.
	Scopes []string
	// Endpoint defaults to github.com.
	Endpoint    oauth2.Endpoint
	FrontendURL string
	States      *oauthstate.Signer
	NewGitHub   GitHubFactory
}

// OAuth runs the web authorization flow of the GitHub OAuth app.
type OAuth struct {
	config    *oauth2.Config
	frontend  *url.URL
	states    *oauthstate.Signer
	newGitHub GitHubFactory
	svc       *Service
	logger    *slog.Logger
}

func NewOAuth(cfg OAuthConfig, svc *Service, logger *slog.Logger) (*OAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("GitHub client id and secret are required")
	}
	if cfg.States == nil {
		return nil, errors.New("state signer is required")
	}
	if cfg.NewGitHub == nil {
		return nil, errors.New("GitHub client factory is required")
	}
	frontend, err := url.Parse(cfg.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid frontend url: %w", err)
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = github.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = auth.DefaultScopes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		frontend:  frontend,
		states:    cfg.States,
		newGitHub: cfg.NewGitHub,
		svc:       svc,
		logger:    logger,
	}, nil
}

func (o *OAuth) AuthURL(w http.ResponseWriter, r *http.Request) {
	state, err := o.states.Issue(safeReturnPath(r.URL.Query().Get("returnTo")))
	if err != nil {
		o.logger.Error("failed to issue oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create authorization url")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": o.config.AuthCodeURL(state)})
}

// Callback completes the flow and always answers with a redirect to the frontend.
func (o *OAuth) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		o.logger.Warn("authorization denied", "error", e, "description", q.Get("error_description"))
		o.fail(w, r, defaultReturnPath, e)
		return
	}
	claims, err := o.states.Verify(q.Get("state"))
	if err != nil {
		o.logger.Warn("invalid oauth state", "error", err)
		o.fail(w, r, defaultReturnPath, "invalid_state")
		return
	}
	returnTo := safeReturnPath(claims.ReturnTo)

	code := q.Get("code")
	if code == "" {
		o.fail(w, r, returnTo, "missing_code")
		return
	}
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		o.logger.Error("failed to exchange authorization code", "error", err)
		o.fail(w, r, returnTo, "token_exchange_failed")
		return
	}

	gh, err := o.newGitHub(token.AccessToken)
	if err != nil {
		o.logger.Error("failed to create GitHub client", "error", err)
		o.fail(w, r, returnTo, "user_lookup_failed")
		return
	}
	user, err := gh.UserInfo(ctx)
	if err != nil || user.GetID() == 0 {
		o.logger.Error("failed to get authenticated user", "error", err)
		o.fail(w, r, returnTo, "user_lookup_failed")
		return
	}

	acct := AuthorizedAccount{
		UserID:       model.UserId(fmt.Sprintf("%d", user.GetID())),
		Username:     user.GetLogin(),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		AvatarURL:    user.GetAvatarURL(),
		ProfileURL:   user.GetHTMLURL(),
		Email:        user.GetEmail(),
		Name:         user.GetName(),
	}
	if scope, ok := token.Extra("scope").(string); ok {
		acct.Scope = scope
	}
	integration, err := o.svc.Authorize(ctx, acct)
	if err != nil {
		o.logger.Error("failed to store integration", "user_id", acct.UserID.String(), "error", err)
		o.fail(w, r, returnTo, "storage_failed")
		return
	}

	o.redirect(w, r, returnTo, url.Values{
		"success": {"true"},
		"userId":  {integration.UserID.String()},
	})
}

func (o *OAuth) fail(w http.ResponseWriter, r *http.Request, path, reason string) {
	o.redirect(w, r, path, url.Values{
		"success": {"false"},
		"error":   {reason},
	})
}

func (o *OAuth) redirect(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	target := *o.frontend
	target.Path = strings.TrimSuffix(target.Path, "/") + path
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// safeReturnPath only allows local absolute paths.
func safeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return defaultReturnPath
	}
	if u, err := url.Parse(p); err != nil || u.Host != "" || u.Scheme != "" {
		return defaultReturnPath
	}
	return p
}
