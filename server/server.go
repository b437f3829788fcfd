package server

import (
	"context"
	"errors"

	"github.com/google/go-github/v71/github"
	"github.com/mscno/ghsync/pkg/githubapi"
	"github.com/mscno/ghsync/server/model"
)

type IntegrationStore interface {
	GetIntegration(ctx context.Context, userID model.UserId) (*model.Integration, error)
	// UpsertIntegration creates or replaces the integration, keeping CreatedAt of an existing one.
	UpsertIntegration(ctx context.Context, integration model.Integration) error
	UpdateIntegration(ctx context.Context, userID model.UserId, updateFn func(model.Integration) (model.Integration, error)) error
	DeleteIntegration(ctx context.Context, userID model.UserId) error
	ListIntegrations(ctx context.Context, activeOnly bool) ([]model.Integration, error)
}

var ErrIntegrationNotFound = errors.New("integration not found")
var ErrIntegrationInactive = errors.New("integration is not active")

// ErrUserIDChanged is returned when an update function changes the integration's UserID.
var ErrUserIDChanged = errors.New("cannot change UserID during update")

// RecordStore persists mirrored records keyed by their natural key.
type RecordStore interface {
	UpsertOne(ctx context.Context, record model.Record) error
	// UpsertMany writes every record it can. A returned error means the batch
	// as a whole could not be attempted; per-record failures are in the result.
	UpsertMany(ctx context.Context, kind model.Kind, records []model.Record) (BatchResult, error)
	DeleteAllForUser(ctx context.Context, userID model.UserId) error
	CountForUser(ctx context.Context, kind model.Kind, userID model.UserId) (int, error)
	// ListForUser returns one page of records ordered by key, and the total count.
	ListForUser(ctx context.Context, kind model.Kind, userID model.UserId, offset, limit int) ([]model.Record, int, error)
}

// ErrDuplicateKey is reported for a record that collided with a concurrent
// insert of the same natural key. It counts as success.
var ErrDuplicateKey = errors.New("duplicate key")
var ErrUnknownCollection = model.ErrUnknownKind

// ItemError is the failure of one record in a batch.
type ItemError struct {
	Key model.Key
	Err error
}

func (e ItemError) Error() string {
	return e.Key.String() + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

type BatchResult struct {
	Applied int
	Errors  []ItemError
}

// RunGuard admits at most one synchronization run per integration.
type RunGuard interface {
	// Acquire returns ErrSyncInProgress when a run for userID is already held.
	Acquire(ctx context.Context, userID model.UserId) (release func(), err error)
	Running(ctx context.Context, userID model.UserId) (bool, error)
}

var ErrSyncInProgress = errors.New("synchronization already in progress")

// GitHub is the read side of the GitHub API a run needs.
type GitHub interface {
	UserInfo(ctx context.Context) (*github.User, error)
	ListOrganizations(ctx context.Context) (githubapi.Discovery, error)
	ListOrgRepositories(ctx context.Context, org string) ([]*github.Repository, error)
	ListRepositoryCommits(ctx context.Context, owner, repo string, max int) ([]*github.RepositoryCommit, error)
	ListRepositoryPullRequests(ctx context.Context, owner, repo string) ([]*github.PullRequest, error)
	ListRepositoryIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error)
	ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error)
	ListOrgMembers(ctx context.Context, org string) ([]*github.User, error)
	RateLimit(ctx context.Context) (*github.Rate, error)
}

// GitHubFactory builds a GitHub reader for an access token.
type GitHubFactory func(token string) (GitHub, error)

// NewGitHubFactory returns a factory producing githubapi clients with cfg.
func NewGitHubFactory(cfg githubapi.Config) GitHubFactory {
	return func(token string) (GitHub, error) {
		client, err := githubapi.New(token, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

var _ GitHub = (*githubapi.Client)(nil)
