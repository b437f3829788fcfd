package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mscno/ghsync/pkg/auth"
)

type cliCtx struct {
	context.Context
	Logger  *slog.Logger
	Keyring auth.Keyring
	Out     io.Writer
}

type cli struct {
	Debug   bool `help:"Enable debug logging" env:"GHSYNC_DEBUG"`
	LogJSON bool `help:"Log in JSON format" name:"log-json" env:"GHSYNC_LOG_JSON"`

	Serve      ServeCmd      `cmd:"" help:"Serve the HTTP API and run scheduled synchronizations"`
	Sync       SyncCmd       `cmd:"" help:"Synchronize one integration in the foreground"`
	Status     StatusCmd     `cmd:"" help:"Show the integration status and mirrored record counts"`
	Disconnect DisconnectCmd `cmd:"" help:"Remove an integration and all of its mirrored records"`
	Login      LoginCmd      `cmd:"" help:"Authorize a GitHub account with the device flow and mirror it"`
	Logout     LogoutCmd     `cmd:"" help:"Remove the credentials stored by login"`
	Keygen     KeygenCmd     `cmd:"" help:"Generate a key for sealing stored access tokens"`
	Remote     RemoteCmd     `cmd:"" help:"Query or control a running server"`

	Version kong.VersionFlag `help:"Show version"`
}

func Execute(version string) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cli cli
	ctx := kong.Parse(&cli,
		kong.UsageOnError(),
		kong.Name("ghsync"),
		kong.Description("ghsync mirrors GitHub organizations, repositories, commits, pull requests, issues and members"),
		kong.Vars{"version": version},
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr, cli.Debug, cli.LogJSON)
	slog.SetDefault(logger)

	err := ctx.Run(&cliCtx{
		Context: sigCtx,
		Logger:  logger,
		Keyring: auth.NewOSKeyring(),
		Out:     os.Stdout,
	})
	ctx.FatalIfErrorf(err)
}

func newLogger(w io.Writer, debug, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
