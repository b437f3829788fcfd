package commands

import (
	"fmt"

	"github.com/mscno/ghsync/pkg/auth"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
)

type LoginCmd struct {
	StoreFlags `embed:""`
	SyncFlags  `embed:""`

	GithubClientID string `help:"GitHub OAuth App client id with device flow enabled" env:"GHSYNC_GITHUB_CLIENT_ID" short:"c"`
}

func (c *LoginCmd) Run(ctx *cliCtx) error {
	if c.GithubClientID == "" {
		return fmt.Errorf("GitHub Client ID must be provided via --github-client-id flag or GHSYNC_GITHUB_CLIENT_ID env var")
	}
	provider := auth.NewGithubProvider(auth.Config{GithubClientID: c.GithubClientID}, ctx.Keyring)
	provider.Out = ctx.Out

	ctx.Logger.Info("Starting GitHub device login flow...")
	creds, err := provider.Login(ctx)
	if err != nil {
		ctx.Logger.Error("Authentication failed", "error", err)
		return fmt.Errorf("authentication failed: %w", err)
	}
	ctx.Logger.Info("Authentication successful.", "login", creds.Login)

	return withService(ctx, &c.StoreFlags, &c.SyncFlags, func(svc *server.Service) error {
		integration, err := svc.Authorize(ctx, accountFromCredentials(creds))
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "Connected %s as user %s, synchronizing...\n", integration.Username, integration.UserID)

		done := make(chan struct{})
		go func() {
			svc.Wait()
			close(done)
		}()
		select {
		case <-done:
			fmt.Fprintf(ctx.Out, "Initial synchronization finished\n")
			return nil
		case <-ctx.Done():
			svc.Close()
			return ctx.Err()
		}
	})
}

func accountFromCredentials(creds *auth.Credentials) server.AuthorizedAccount {
	return server.AuthorizedAccount{
		UserID:      model.UserId(creds.UserID),
		Username:    creds.Login,
		AccessToken: creds.Token,
		TokenType:   creds.TokenType,
		Scope:       creds.Scope,
	}
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cliCtx) error {
	provider := auth.NewGithubProvider(auth.Config{}, ctx.Keyring)
	if err := provider.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	ctx.Logger.Info("Logout successful. Credentials removed from keyring.")
	return nil
}
