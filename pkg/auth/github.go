package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mscno/ghsync/pkg/githubapi"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var ErrTokenNotFound = errors.New("authentication token not found in keyring")

// GithubProvider logs in with the GitHub device flow.
type GithubProvider struct {
	Config   Config
	Endpoint oauth2.Endpoint
	Identify IdentityFunc
	Out      io.Writer
	keyring  Keyring
}

// NewGithubProvider creates a GithubProvider against github.com.
func NewGithubProvider(cfg Config, keyring Keyring) *GithubProvider {
	return &GithubProvider{
		Config:   cfg,
		Endpoint: github.Endpoint,
		Identify: identifyWithAPI,
		Out:      os.Stdout,
		keyring:  keyring,
	}
}

func (p *GithubProvider) oauthConfig() *oauth2.Config {
	scopes := p.Config.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID: p.Config.GithubClientID,
		Scopes:   scopes,
		Endpoint: p.Endpoint,
	}
}

// Login runs the device flow, resolves the account and stores the credentials.
func (p *GithubProvider) Login(ctx context.Context) (*Credentials, error) {
	if p.Config.GithubClientID == "" {
		return nil, errors.New("GitHub Client ID is required for authentication")
	}
	cfg := p.oauthConfig()

	deviceCode, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	fmt.Fprintf(p.Out, "Please visit %s and enter the code: %s\n", deviceCode.VerificationURI, deviceCode.UserCode)
	fmt.Fprintf(p.Out, "Waiting for authorization...\n")

	token, err := cfg.DeviceAccessToken(ctx, deviceCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	userID, login, err := p.Identify(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub account: %w", err)
	}

	creds := &Credentials{
		Token:     token.AccessToken,
		TokenType: token.TokenType,
		UserID:    userID,
		Login:     login,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		creds.Scope = scope
	}

	for key, value := range map[string]string{
		GithubToken:  creds.Token,
		GithubUserID: creds.UserID,
		GithubLogin:  creds.Login,
	} {
		if err := p.keyring.Set(ServiceName, key, value); err != nil {
			return nil, fmt.Errorf("failed to store %s in keyring: %w", key, err)
		}
	}
	return creds, nil
}

// Stored returns the credentials saved by the last Login.
func (p *GithubProvider) Stored() (*Credentials, error) {
	token, err := p.keyring.Get(ServiceName, GithubToken)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	creds := &Credentials{Token: token}
	if creds.UserID, err = p.keyring.Get(ServiceName, GithubUserID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if creds.Login, err = p.keyring.Get(ServiceName, GithubLogin); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return creds, nil
}

// Logout removes the stored token and identifiers.
func (p *GithubProvider) Logout() error {
	var errs []error
	for _, key := range []string{GithubToken, GithubUserID, GithubLogin} {
		if err := p.keyring.Delete(ServiceName, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s from keyring: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func identifyWithAPI(ctx context.Context, token string) (string, string, error) {
	client, err := githubapi.New(token, githubapi.Config{})
	if err != nil {
		return "", "", err
	}
	user, err := client.UserInfo(ctx)
	if err != nil {
		return "", "", err
	}
	if user.GetID() == 0 || user.GetLogin() == "" {
		return "", "", errors.New("GitHub user id or login missing from response")
	}
	return fmt.Sprintf("%d", user.GetID()), user.GetLogin(), nil
}
