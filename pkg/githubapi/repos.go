package githubapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/go-github/v71/github"
)

// mockingbird is the preview media type the issue timeline is served under.
const mediaTypeTimelinePreview = "application/vnd.github.mockingbird-preview+json"

// ListOrgRepositories lists every repository of org (type=all).
func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	repos, err := collect(ctx, c, "repos", func(ctx context.Context, opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return c.gh.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{
			Type:        "all",
			ListOptions: opts,
		})
	}, nil, 0)
	if err != nil {
		return []*github.Repository{}, &ResourceError{Resource: "repositories", Owner: org, Err: err}
	}
	return nonNil(repos), nil
}

// ListRepositoryCommits lists up to max commits in API order. max <= 0 means DefaultMaxCommits.
func (c *Client) ListRepositoryCommits(ctx context.Context, owner, repo string, max int) ([]*github.RepositoryCommit, error) {
	if max <= 0 {
		max = DefaultMaxCommits
	}
	commits, err := collect(ctx, c, "commits", func(ctx context.Context, opts github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
		return c.gh.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{ListOptions: opts})
	}, nil, max)
	if err != nil {
		return []*github.RepositoryCommit{}, &ResourceError{Resource: "commits", Owner: owner, Repo: repo, Err: err}
	}
	return nonNil(commits), nil
}

// ListRepositoryPullRequests lists pull requests in every state.
func (c *Client) ListRepositoryPullRequests(ctx context.Context, owner, repo string) ([]*github.PullRequest, error) {
	prs, err := collect(ctx, c, "pulls", func(ctx context.Context, opts github.ListOptions) ([]*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
			State:       "all",
			ListOptions: opts,
		})
	}, nil, 0)
	if err != nil {
		return []*github.PullRequest{}, &ResourceError{Resource: "pull requests", Owner: owner, Repo: repo, Err: err}
	}
	return nonNil(prs), nil
}

// ListRepositoryIssues lists issues in every state. The issues endpoint also
// returns pull requests; those are dropped.
func (c *Client) ListRepositoryIssues(ctx context.Context, owner, repo string) ([]*github.Issue, error) {
	issues, err := collect(ctx, c, "issues", func(ctx context.Context, opts github.ListOptions) ([]*github.Issue, *github.Response, error) {
		return c.gh.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
			State:       "all",
			ListOptions: opts,
		})
	}, func(issue *github.Issue) bool {
		return !issue.IsPullRequest()
	}, 0)
	if err != nil {
		return []*github.Issue{}, &ResourceError{Resource: "issues", Owner: owner, Repo: repo, Err: err}
	}
	return nonNil(issues), nil
}

// ListIssueTimeline lists the timeline events of one issue.
func (c *Client) ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error) {
	events, err := collect(ctx, c, "timeline", func(ctx context.Context, opts github.ListOptions) ([]*github.Timeline, *github.Response, error) {
		u := fmt.Sprintf("repos/%s/%s/issues/%d/timeline?page=%d&per_page=%d",
			url.PathEscape(owner), url.PathEscape(repo), number, opts.Page, opts.PerPage)
		req, err := c.gh.NewRequest("GET", u, nil)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Accept", mediaTypeTimelinePreview)

		var page []*github.Timeline
		resp, err := c.gh.Do(ctx, req, &page)
		if err != nil {
			return nil, resp, err
		}
		return page, resp, nil
	}, nil, 0)
	if err != nil {
		return []*github.Timeline{}, &ResourceError{Resource: "timeline", Owner: owner, Repo: repo, Number: number, Err: err}
	}
	return nonNil(events), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
