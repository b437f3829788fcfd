package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mscno/ghsync/pkg/oauthstate"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/stores"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 30 * time.Second

type ServeCmd struct {
	StoreFlags `embed:""`
	SyncFlags  `embed:""`

	Addr         string        `help:"Listen address" default:":8080" env:"GHSYNC_ADDR"`
	FrontendURL  string        `help:"Frontend base URL for redirects and CORS" default:"http://localhost:3000" env:"GHSYNC_FRONTEND_URL"`
	RedisAddr    string        `help:"Redis address for the cross-process run guard, empty for in-process" env:"GHSYNC_REDIS_ADDR"`
	SyncInterval time.Duration `help:"Interval between scheduled synchronizations, zero disables" default:"0" env:"GHSYNC_SYNC_INTERVAL"`
	RateLimit    float64       `help:"API requests per second per client, negative disables" default:"5" env:"GHSYNC_RATE_LIMIT"`
	RateBurst    int           `help:"API request burst per client" default:"20" env:"GHSYNC_RATE_BURST"`

	GithubClientID     string `help:"GitHub OAuth App client id" env:"GHSYNC_GITHUB_CLIENT_ID"`
	GithubClientSecret string `help:"GitHub OAuth App client secret" env:"GHSYNC_GITHUB_CLIENT_SECRET"`
	GithubRedirectURL  string `help:"OAuth callback URL registered with the app" env:"GHSYNC_GITHUB_REDIRECT_URL"`
	StateSecret        string `help:"Secret signing OAuth state values" env:"GHSYNC_STATE_SECRET"`
}

func (c *ServeCmd) Run(ctx *cliCtx) error {
	logger := ctx.Logger

	b, err := c.StoreFlags.open(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	var guard server.RunGuard
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", c.RedisAddr, err)
		}
		guard = stores.NewRedisRunGuard(rdb, "", 0, logger)
		logger.Info("using redis run guard", "addr", c.RedisAddr)
	}

	svc := c.SyncFlags.service(b, guard, logger)
	defer svc.Close()

	oauth, err := c.oauth(svc, logger)
	if err != nil {
		return err
	}
	if oauth == nil {
		logger.Warn("GitHub OAuth app not configured, authorization endpoints are disabled")
	}

	srv := server.NewHTTPServer(server.NewHandler(svc, oauth, logger), server.HTTPConfig{
		Addr:           c.Addr,
		AllowedOrigins: []string{c.FrontendURL},
		RateLimit:      rate.Limit(c.RateLimit),
		RateBurst:      c.RateBurst,
		Logger:         logger,
	})

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	go server.NewScheduler(svc, c.SyncInterval, logger).Start(schedCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancelSched()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// oauth returns nil when no OAuth app is configured.
func (c *ServeCmd) oauth(svc *server.Service, logger *slog.Logger) (*server.OAuth, error) {
	if c.GithubClientID == "" && c.GithubClientSecret == "" {
		return nil, nil
	}
	if c.StateSecret == "" {
		return nil, errors.New("a state secret is required when the OAuth app is configured")
	}
	states, err := oauthstate.NewSigner(c.StateSecret, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	return server.NewOAuth(server.OAuthConfig{
		ClientID:     c.GithubClientID,
		ClientSecret: c.GithubClientSecret,
		RedirectURL:  c.GithubRedirectURL,
		FrontendURL:  c.FrontendURL,
		States:       states,
		NewGitHub:    server.NewGitHubFactory(c.SyncFlags.githubConfig(logger)),
	}, svc, logger)
}
