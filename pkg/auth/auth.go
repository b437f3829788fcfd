// Package auth runs the GitHub OAuth device flow for the CLI and keeps the
// resulting credentials in the OS keyring.
package auth

import "context"

const (
	ServiceName  = "ghsync"
	GithubToken  = "github_token"
	GithubUserID = "github_user_id"
	GithubLogin  = "github_login"
)

// DefaultScopes are the OAuth scopes a full mirror needs.
var DefaultScopes = []string{"read:org", "read:user", "repo", "user:email"}

// Config holds configuration for the auth package.
type Config struct {
	GithubClientID string
	// Scopes defaults to DefaultScopes.
	Scopes []string
}

// Credentials are the stored result of a login.
type Credentials struct {
	Token     string
	TokenType string
	Scope     string
	UserID    string
	Login     string
}

// IdentityFunc resolves the GitHub user id and login a token belongs to.
type IdentityFunc func(ctx context.Context, token string) (userID, login string, err error)
