package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/mscno/ghsync/pkg/githubapi"
	"github.com/mscno/ghsync/pkg/tokenbox"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"github.com/mscno/ghsync/server/stores"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// StoreFlags selects and configures the storage backend.
type StoreFlags struct {
	Store             string `help:"Storage backend (${enum})" enum:"memory,bolt,datastore" default:"bolt" env:"GHSYNC_STORE"`
	BoltPath          string `help:"Path of the bolt database file" default:"ghsync.db" env:"GHSYNC_BOLT_PATH"`
	DatastoreProject  string `help:"Google Cloud project of the datastore backend" env:"GHSYNC_DATASTORE_PROJECT"`
	DatastoreDatabase string `help:"Datastore database id, empty for the default database" env:"GHSYNC_DATASTORE_DATABASE"`
	DatastoreEndpoint string `help:"Datastore endpoint override, e.g. an emulator" env:"GHSYNC_DATASTORE_ENDPOINT"`
	TokenKey          string `help:"Base64 key sealing stored access tokens (see keygen)" env:"GHSYNC_TOKEN_KEY"`
}

// SyncFlags tune how runs read GitHub.
type SyncFlags struct {
	GithubBaseURL  string        `help:"GitHub API base URL" env:"GHSYNC_GITHUB_BASE_URL"`
	PageDelay      time.Duration `help:"Delay before each continuation page, zero or negative disables" default:"100ms" env:"GHSYNC_PAGE_DELAY"`
	MaxCommits     int           `help:"Commits mirrored per repository" default:"2000" env:"GHSYNC_MAX_COMMITS"`
	TimelineIssues int           `help:"Issues per repository whose timeline is mirrored" default:"50" env:"GHSYNC_TIMELINE_ISSUES"`
	GithubRPS      float64       `help:"Requests per second to GitHub shared by all runs, zero for unlimited" default:"0" name:"github-rps" env:"GHSYNC_GITHUB_RPS"`
}

type backend struct {
	Integrations server.IntegrationStore
	Records      server.RecordStore
	Tokens       tokenbox.Sealer
	close        func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func (f *StoreFlags) tokens() (tokenbox.Sealer, error) {
	if f.TokenKey == "" {
		return tokenbox.Plain{}, nil
	}
	box, err := tokenbox.New(f.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("invalid token key: %w", err)
	}
	return box, nil
}

func (f *StoreFlags) open(ctx context.Context, logger *slog.Logger) (*backend, error) {
	tokens, err := f.tokens()
	if err != nil {
		return nil, err
	}

	switch f.Store {
	case "memory":
		logger.Info("using in-memory store")
		return &backend{
			Integrations: stores.NewInMemoryIntegrationStore(),
			Records:      stores.NewInMemoryRecordStore(),
			Tokens:       tokens,
		}, nil
	case "bolt", "":
		db, err := bbolt.Open(f.BoltPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt database %s: %w", f.BoltPath, err)
		}
		logger.Info("using bolt store", "path", f.BoltPath)
		return &backend{
			Integrations: stores.NewBoltIntegrationStore(db),
			Records:      stores.NewBoltRecordStore(db),
			Tokens:       tokens,
			close:        db.Close,
		}, nil
	case "datastore":
		if f.DatastoreProject == "" {
			return nil, errors.New("datastore project is required for the datastore store")
		}
		var opts []option.ClientOption
		if f.DatastoreEndpoint != "" {
			opts = append(opts, option.WithEndpoint(f.DatastoreEndpoint))
		}
		var client *datastore.Client
		if f.DatastoreDatabase != "" {
			client, err = datastore.NewClientWithDatabase(ctx, f.DatastoreProject, f.DatastoreDatabase, opts...)
		} else {
			client, err = datastore.NewClient(ctx, f.DatastoreProject, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		logger.Info("using datastore store", "project", f.DatastoreProject, "database", f.DatastoreDatabase)
		return &backend{
			Integrations: stores.NewIntegrationDataStore(ctx, client),
			Records:      stores.NewRecordDataStore(ctx, client),
			Tokens:       tokens,
			close:        client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", f.Store)
	}
}

func (f *SyncFlags) githubConfig(logger *slog.Logger) githubapi.Config {
	cfg := githubapi.Config{
		BaseURL:   f.GithubBaseURL,
		PageDelay: f.PageDelay,
		Logger:    logger,
	}
	if f.PageDelay == 0 {
		cfg.PageDelay = -1
	}
	if f.GithubRPS > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(f.GithubRPS), 1)
	}
	return cfg
}

func (f *SyncFlags) syncer(b *backend, logger *slog.Logger) *server.Syncer {
	return server.NewSyncer(b.Integrations, b.Records, server.NewGitHubFactory(f.githubConfig(logger)), server.SyncerConfig{
		MaxCommits:     f.MaxCommits,
		TimelineIssues: f.TimelineIssues,
		Tokens:         b.Tokens,
		Logger:         logger,
	})
}

// service wires a Service over b. guard may be nil.
func (f *SyncFlags) service(b *backend, guard server.RunGuard, logger *slog.Logger) *server.Service {
	return server.NewService(server.ServiceConfig{
		Integrations: b.Integrations,
		Records:      b.Records,
		Syncer:       f.syncer(b, logger),
		Guard:        guard,
		Tokens:       b.Tokens,
		Logger:       logger,
	})
}

// withService opens the backend, builds a Service and tears both down after fn.
func withService(ctx *cliCtx, store *StoreFlags, sync *SyncFlags, fn func(*server.Service) error) error {
	b, err := store.open(ctx, ctx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			ctx.Logger.Error("failed to close store", "error", err)
		}
	}()
	svc := sync.service(b, nil, ctx.Logger)
	defer svc.Close()
	return fn(svc)
}

func userID(s string) (model.UserId, error) {
	if s == "" {
		return "", errors.New("user id is required")
	}
	return model.UserId(s), nil
}
