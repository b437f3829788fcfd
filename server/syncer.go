package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/mscno/ghsync/pkg/githubapi"
	"github.com/mscno/ghsync/pkg/metrics"
	"github.com/mscno/ghsync/pkg/tokenbox"
	"github.com/mscno/ghsync/server/model"
)

const DefaultTimelineIssues = 50

type SyncerConfig struct {
	// MaxCommits per repository, githubapi.DefaultMaxCommits when zero.
	MaxCommits int
	// TimelineIssues is how many issues per repository, in API order, get their timeline mirrored.
	TimelineIssues int
	// Tokens opens the stored access token. Defaults to tokenbox.Plain.
	Tokens tokenbox.Sealer
	Logger *slog.Logger
}

// Syncer mirrors one integration's GitHub data into the record store.
type Syncer struct {
	integrations   IntegrationStore
	records        RecordStore
	newGitHub      GitHubFactory
	tokens         tokenbox.Sealer
	maxCommits     int
	timelineIssues int
	logger         *slog.Logger
	now            func() time.Time
}

func NewSyncer(integrations IntegrationStore, records RecordStore, newGitHub GitHubFactory, cfg SyncerConfig) *Syncer {
	s := &Syncer{
		integrations:   integrations,
		records:        records,
		newGitHub:      newGitHub,
		tokens:         cfg.Tokens,
		maxCommits:     cfg.MaxCommits,
		timelineIssues: cfg.TimelineIssues,
		logger:         cfg.Logger,
		now:            time.Now,
	}
	if s.tokens == nil {
		s.tokens = tokenbox.Plain{}
	}
	if s.maxCommits <= 0 {
		s.maxCommits = githubapi.DefaultMaxCommits
	}
	if s.timelineIssues <= 0 {
		s.timelineIssues = DefaultTimelineIssues
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run performs one full pass over the integration's organizations. Only a
// failure to resolve the account or its organizations, or cancellation,
// aborts the run; that error is returned and also set on the report.
// LastSyncedAt is only advanced by a run that did not abort.
func (s *Syncer) Run(ctx context.Context, integration model.Integration) (*RunReport, error) {
	r := &run{
		Syncer: s,
		user:   integration.UserID,
		logger: s.logger.With("user_id", integration.UserID.String()),
		report: &RunReport{UserID: integration.UserID, StartedAt: s.now()},
	}
	metrics.SyncRunsInFlight.Inc()
	defer metrics.SyncRunsInFlight.Dec()

	r.logger.Info("synchronization started", "username", integration.Username)
	r.report.Err = r.execute(ctx, integration)
	s.finish(ctx, r)
	return r.report, r.report.Err
}

type run struct {
	*Syncer
	gh     GitHub
	user   model.UserId
	logger *slog.Logger
	report *RunReport
}

func (r *run) execute(ctx context.Context, integration model.Integration) error {
	token, err := r.tokens.Open(integration.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to open access token: %w", err)
	}
	r.gh, err = r.newGitHub(token)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	if quota, err := r.gh.RateLimit(ctx); err != nil {
		r.logger.Warn("failed to read API quota", "error", err)
	} else {
		r.logger.Info("API quota", "remaining", quota.Remaining, "limit", quota.Limit, "reset", quota.Reset.Time)
	}

	discovery, err := r.gh.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	r.report.Strategy = discovery.Strategy
	if len(discovery.Organizations) == 0 {
		r.logger.Info("no organizations found", "strategy", discovery.Strategy)
		return nil
	}
	r.logger.Info("organizations resolved",
		"count", len(discovery.Organizations),
		"strategy", discovery.Strategy,
	)

	for _, org := range discovery.Organizations {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.syncOrganization(ctx, org)
	}
	return ctx.Err()
}

func (r *run) syncOrganization(ctx context.Context, org *github.Organization) {
	login := org.GetLogin()
	logger := r.logger.With("org", login)
	r.report.Organizations++
	r.upsertOne(ctx, model.KindOrganization, login, org, login)

	repos, err := r.gh.ListOrgRepositories(ctx, login)
	switch {
	case err != nil:
		logger.Warn("failed to list repositories", "error", err)
		r.addUnit(UnitResult{Kind: model.KindRepository, Scope: login, Status: UnitDegraded, Reason: err.Error()})
	case len(repos) == 0:
		logger.Info("organization has no repositories")
		r.addUnit(UnitResult{Kind: model.KindRepository, Scope: login, Status: UnitEmpty})
	default:
		logger.Info("synchronizing repositories", "count", len(repos))
	}

	for _, repo := range repos {
		if ctx.Err() != nil {
			return
		}
		r.syncRepository(ctx, login, repo)
	}

	members, err := r.gh.ListOrgMembers(ctx, login)
	storeAll(ctx, r, model.KindMember, login, members, err, func(m *github.User) ([]string, any) {
		return []string{login, m.GetLogin()}, m
	})
}

func (r *run) syncRepository(ctx context.Context, orgLogin string, repo *github.Repository) {
	name := repo.GetName()
	owner := repo.GetOwner().GetLogin()
	if owner == "" {
		owner = orgLogin
	}
	scope := owner + "/" + name
	r.report.Repositories++
	r.upsertOne(ctx, model.KindRepository, scope, repo, orgLogin, name)

	commits, err := r.gh.ListRepositoryCommits(ctx, owner, name, r.maxCommits)
	storeAll(ctx, r, model.KindCommit, scope, commits, err, func(c *github.RepositoryCommit) ([]string, any) {
		return []string{name, c.GetSHA()}, c
	})

	prs, err := r.gh.ListRepositoryPullRequests(ctx, owner, name)
	storeAll(ctx, r, model.KindPullRequest, scope, prs, err, func(pr *github.PullRequest) ([]string, any) {
		return []string{name, strconv.Itoa(pr.GetNumber())}, pr
	})

	issues, err := r.gh.ListRepositoryIssues(ctx, owner, name)
	storeAll(ctx, r, model.KindIssue, scope, issues, err, func(issue *github.Issue) ([]string, any) {
		return []string{name, strconv.Itoa(issue.GetNumber())}, issue
	})

	r.syncTimelines(ctx, owner, name, scope, issues)
}

type timelineEntry struct {
	issue int
	pos   int
	event *github.Timeline
}

// syncTimelines mirrors the timelines of the first issues in API order.
func (r *run) syncTimelines(ctx context.Context, owner, repo, scope string, issues []*github.Issue) {
	if len(issues) > r.timelineIssues {
		issues = issues[:r.timelineIssues]
	}
	if len(issues) == 0 {
		return
	}

	var (
		entries  []timelineEntry
		failures int
		lastErr  error
	)
	for _, issue := range issues {
		if ctx.Err() != nil {
			return
		}
		events, err := r.gh.ListIssueTimeline(ctx, owner, repo, issue.GetNumber())
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		for i, ev := range events {
			entries = append(entries, timelineEntry{issue: issue.GetNumber(), pos: i, event: ev})
		}
	}

	var fetchErr error
	if failures > 0 {
		fetchErr = fmt.Errorf("%d of %d issue timelines failed: %w", failures, len(issues), lastErr)
	}
	storeAll(ctx, r, model.KindTimelineEvent, scope, entries, fetchErr, func(e timelineEntry) ([]string, any) {
		return []string{strconv.Itoa(e.issue), timelineEventID(e.event, e.pos)}, e.event
	})
}

// timelineEventID is the event id. Events GitHub serves without one
// (commits, cross references) are named by event type, time when present,
// and the commit sha, the source issue or else the position in the timeline.
func timelineEventID(ev *github.Timeline, pos int) string {
	if id := ev.GetID(); id != 0 {
		return strconv.FormatInt(id, 10)
	}
	parts := []string{ev.GetEvent()}
	if ev.CreatedAt != nil {
		parts = append(parts, strconv.FormatInt(ev.GetCreatedAt().Unix(), 10))
	}
	src := ev.GetSource().GetIssue()
	switch {
	case ev.GetSHA() != "":
		parts = append(parts, ev.GetSHA())
	case src.GetID() != 0:
		parts = append(parts, strconv.FormatInt(src.GetID(), 10))
	case src.GetHTMLURL() != "":
		parts = append(parts, src.GetHTMLURL())
	case src.GetNumber() != 0:
		parts = append(parts, strconv.Itoa(src.GetNumber()))
	default:
		parts = append(parts, strconv.Itoa(pos))
	}
	return strings.Join(parts, "-")
}

func (r *run) upsertOne(ctx context.Context, kind model.Kind, scope string, payload any, parts ...string) {
	unit := UnitResult{Kind: kind, Scope: scope, Fetched: 1, Status: UnitOK}
	err := func() error {
		key, err := kind.Key(r.user, parts...)
		if err != nil {
			return err
		}
		rec, err := model.NewRecord(key, payload, r.now())
		if err != nil {
			return err
		}
		if err := r.records.UpsertOne(ctx, rec); err != nil && !errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return nil
	}()
	if err != nil {
		r.logger.Error("failed to store record", "collection", kind.Collection(), "scope", scope, "error", err)
		unit.Status, unit.Failed, unit.Reason = UnitDegraded, 1, err.Error()
	} else {
		unit.Stored = 1
		metrics.RecordsUpsertedTotal.WithLabelValues(kind.Collection()).Inc()
	}
	r.addUnit(unit)
}

// storeAll bulk upserts one listing. Duplicate-key item errors count as
// stored; other item errors are logged and never stop the batch.
func storeAll[T any](ctx context.Context, r *run, kind model.Kind, scope string, items []T, fetchErr error, extract func(T) ([]string, any)) {
	unit := UnitResult{Kind: kind, Scope: scope, Fetched: len(items), Status: UnitOK}
	if fetchErr != nil {
		unit.Reason = fetchErr.Error()
		r.logger.Warn("listing failed, continuing", "collection", kind.Collection(), "scope", scope, "error", fetchErr)
	}
	if len(items) == 0 {
		unit.Status = UnitEmpty
		if fetchErr != nil {
			unit.Status = UnitDegraded
		}
		r.addUnit(unit)
		return
	}

	now := r.now()
	records := make([]model.Record, 0, len(items))
	for _, item := range items {
		parts, payload := extract(item)
		key, err := kind.Key(r.user, parts...)
		if err == nil {
			var rec model.Record
			if rec, err = model.NewRecord(key, payload, now); err == nil {
				records = append(records, rec)
				continue
			}
		}
		unit.Failed++
		r.logger.Debug("skipping record", "collection", kind.Collection(), "scope", scope, "error", err)
	}

	if len(records) > 0 {
		res, err := r.records.UpsertMany(ctx, kind, records)
		if err != nil {
			unit.Failed += len(records)
			unit.Reason = err.Error()
			r.logger.Error("bulk upsert failed", "collection", kind.Collection(), "scope", scope, "error", err)
		} else {
			unit.Stored = res.Applied
			for _, ie := range res.Errors {
				if errors.Is(ie.Err, ErrDuplicateKey) {
					unit.Stored++
					continue
				}
				unit.Failed++
				r.logger.Error("failed to store record", "key", ie.Key.String(), "error", ie.Err)
			}
		}
	}

	if unit.Failed > 0 || fetchErr != nil {
		unit.Status = UnitDegraded
		if unit.Reason == "" {
			unit.Reason = fmt.Sprintf("%d of %d records not stored", unit.Failed, len(items))
		}
	}
	metrics.RecordsUpsertedTotal.WithLabelValues(kind.Collection()).Add(float64(unit.Stored))
	r.addUnit(unit)
}

func (r *run) addUnit(u UnitResult) {
	metrics.SyncUnitsTotal.WithLabelValues(u.Kind.String(), string(u.Status)).Inc()
	r.report.Units = append(r.report.Units, u)
}

// finish records the run on the integration. An aborted run leaves
// LastSyncedAt untouched; a rejected credential also deactivates the integration.
func (s *Syncer) finish(ctx context.Context, r *run) {
	report := r.report
	report.FinishedAt = s.now()
	summary := report.Summary()
	unauthorized := report.Fatal() && githubapi.IsUnauthorized(report.Err)

	err := s.integrations.UpdateIntegration(context.WithoutCancel(ctx), report.UserID, func(in model.Integration) (model.Integration, error) {
		in.LastRun = &summary
		in.UpdatedAt = report.FinishedAt
		if !report.Fatal() {
			syncedAt := report.FinishedAt
			in.LastSyncedAt = &syncedAt
		}
		if unauthorized {
			in.IsActive = false
		}
		return in, nil
	})
	if errors.Is(err, ErrIntegrationNotFound) {
		r.logger.Warn("integration removed during synchronization")
	} else if err != nil {
		r.logger.Error("failed to record synchronization result", "error", err)
	}

	metrics.SyncRunsTotal.WithLabelValues(report.Outcome()).Inc()
	metrics.SyncRunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if report.Fatal() {
		r.logger.Error("synchronization aborted",
			"error", report.Err,
			"deactivated", unauthorized,
		)
		return
	}
	r.logger.Info("synchronization finished",
		"outcome", report.Outcome(),
		"organizations", report.Organizations,
		"repositories", report.Repositories,
		"degraded", summary.Degraded,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
}
