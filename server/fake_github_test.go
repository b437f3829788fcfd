package server_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/go-github/v71/github"
	"github.com/mscno/ghsync/pkg/githubapi"
	"github.com/mscno/ghsync/server"
)

type fakeRepo struct {
	repo     *github.Repository
	commits  []*github.RepositoryCommit
	prs      []*github.PullRequest
	issues   []*github.Issue
	timeline map[int][]*github.Timeline
	// commitsErr, prsErr and issuesErr fail that listing of this repository.
	commitsErr error
	prsErr     error
	issuesErr  error
}

type fakeOrg struct {
	org     *github.Organization
	repos   []*fakeRepo
	members []*github.User
	// reposErr fails the repository listing of this organization.
	reposErr error
}

// fakeGitHub serves a fixed account. Failures mirror githubapi: listings
// come back empty with an error.
type fakeGitHub struct {
	mu       sync.Mutex
	user     *github.User
	orgs     []*fakeOrg
	strategy githubapi.Strategy
	orgsErr  error
	// gate, when set, blocks ListOrganizations until closed or ctx is done.
	gate chan struct{}
	// started receives once per ListOrganizations call when set.
	started chan struct{}

	tokens        []string
	timelineCalls int
}

func (f *fakeGitHub) factory() server.GitHubFactory {
	return func(token string) (server.GitHub, error) {
		f.mu.Lock()
		f.tokens = append(f.tokens, token)
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeGitHub) UserInfo(ctx context.Context) (*github.User, error) {
	return f.user, nil
}

func (f *fakeGitHub) ListOrganizations(ctx context.Context) (githubapi.Discovery, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return githubapi.Discovery{}, ctx.Err()
		}
	}
	if f.orgsErr != nil {
		return githubapi.Discovery{}, f.orgsErr
	}
	d := githubapi.Discovery{Strategy: f.strategy}
	if d.Strategy == "" {
		d.Strategy = githubapi.StrategyMembership
	}
	for _, o := range f.orgs {
		d.Organizations = append(d.Organizations, o.org)
	}
	return d, nil
}

func (f *fakeGitHub) findOrg(login string) *fakeOrg {
	for _, o := range f.orgs {
		if o.org.GetLogin() == login {
			return o
		}
	}
	return nil
}

func (f *fakeGitHub) findRepo(owner, name string) *fakeRepo {
	if o := f.findOrg(owner); o != nil {
		for _, r := range o.repos {
			if r.repo.GetName() == name {
				return r
			}
		}
	}
	return nil
}

func (f *fakeGitHub) ListOrgRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	o := f.findOrg(org)
	if o == nil {
		return []*github.Repository{}, nil
	}
	if o.reposErr != nil {
		return []*github.Repository{}, &githubapi.ResourceError{Resource: "repos", Owner: org, Err: o.reposErr}
	}
	out := []*github.Repository{}
	for _, r := range o.repos {
		out = append(out, r.repo)
	}
	return out, nil
}

func (f *fakeGitHub) ListRepositoryCommits(ctx context.Context, owner, repo string, max int) ([]*github.RepositoryCommit, error) {
	r := f.findRepo(owner, repo)
	if r == nil {
		return []*github.RepositoryCommit{}, nil
	}
	if r.commitsErr != nil {
		return []*github.RepositoryCommit{}, &githubapi.ResourceError{Resource: "commits", Owner: owner, Repo: repo, Err: r.commitsErr}
	}
	if len(r.commits) > max {
		return r.commits[:max], nil
	}
	return r.commits, nil
}

func (f *fakeGitHub) ListRepositoryPullRequests(ctx context.Context, owner, repo string) ([]*github.PullRequest, error) {
	if r := f.findRepo(owner, repo); r != nil {
		if r.prsErr != nil {
			return []*github.PullRequest{}, &githubapi.ResourceError{Resource: "pulls", Owner: owner, Repo: repo, Err: r.prsErr}
		}
		return r.prs, nil
	}
	return []*github.PullRequest{}, nil
}

func (f *fakeGitHub) ListRepositoryIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error) {
	if r := f.findRepo(owner, repo); r != nil {
		if r.issuesErr != nil {
			return []*github.Issue{}, &githubapi.ResourceError{Resource: "issues", Owner: owner, Repo: repo, Err: r.issuesErr}
		}
		return r.issues, nil
	}
	return []*github.Issue{}, nil
}

func (f *fakeGitHub) ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error) {
	f.mu.Lock()
	f.timelineCalls++
	f.mu.Unlock()
	if r := f.findRepo(owner, repo); r != nil && r.timeline != nil {
		return r.timeline[number], nil
	}
	return []*github.Timeline{}, nil
}

func (f *fakeGitHub) ListOrgMembers(ctx context.Context, org string) ([]*github.User, error) {
	if o := f.findOrg(org); o != nil {
		return o.members, nil
	}
	return []*github.User{}, nil
}

func (f *fakeGitHub) RateLimit(ctx context.Context) (*github.Rate, error) {
	return &github.Rate{Limit: 5000, Remaining: 4999}, nil
}

func (f *fakeGitHub) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timelineCalls
}

func (f *fakeGitHub) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func newOrg(login string, repos ...*fakeRepo) *fakeOrg {
	return &fakeOrg{
		org:   &github.Organization{Login: github.Ptr(login), ID: github.Ptr(int64(len(login)))},
		repos: repos,
		members: []*github.User{
			{Login: github.Ptr(login + "-admin"), ID: github.Ptr(int64(1))},
		},
	}
}

func newRepo(owner, name string, commits, prs, issues int) *fakeRepo {
	r := &fakeRepo{
		repo: &github.Repository{
			Name:  github.Ptr(name),
			Owner: &github.User{Login: github.Ptr(owner)},
		},
		timeline: map[int][]*github.Timeline{},
	}
	for i := 0; i < commits; i++ {
		r.commits = append(r.commits, &github.RepositoryCommit{SHA: github.Ptr(fmt.Sprintf("%s-c%d", name, i))})
	}
	for i := 1; i <= prs; i++ {
		r.prs = append(r.prs, &github.PullRequest{Number: github.Ptr(i)})
	}
	for i := 1; i <= issues; i++ {
		r.issues = append(r.issues, &github.Issue{Number: github.Ptr(100 + i)})
	}
	return r
}

func unauthorized() error {
	return &githubapi.IdentityError{
		Op: "list organizations",
		Err: &github.ErrorResponse{
			Response: &http.Response{
				StatusCode: http.StatusUnauthorized,
				Request:    &http.Request{Method: http.MethodGet, URL: &url.URL{Path: "/user/orgs"}},
			},
			Message: "Bad credentials",
		},
	}
}

var errBoom = errors.New("boom")
