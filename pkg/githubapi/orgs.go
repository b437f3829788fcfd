package githubapi

import (
	"context"

	"github.com/google/go-github/v71/github"
	"golang.org/x/sync/errgroup"
)

// Strategy names how the organization list was obtained.
type Strategy string

const (
	// StrategyMembership lists the organizations the account is a member of.
	StrategyMembership Strategy = "membership"
	// StrategyRepositoryOwners derives organizations from the owners of repositories
	// the account can see. Used when membership listing returns nothing, which
	// happens when the token has not been granted access to the organizations.
	StrategyRepositoryOwners Strategy = "repository-owners"
)

// Discovery is the result of organization resolution.
type Discovery struct {
	Organizations []*github.Organization
	Strategy      Strategy
}

var userRepoAffiliation = "owner,collaborator,organization_member"

// ListOrganizations resolves the account's organizations with full detail.
// Membership listing failures are fatal; see Strategy for the fallback.
func (c *Client) ListOrganizations(ctx context.Context) (Discovery, error) {
	summaries, err := collect(ctx, c, "orgs", func(ctx context.Context, opts github.ListOptions) ([]*github.Organization, *github.Response, error) {
		return c.gh.Organizations.List(ctx, "", &opts)
	}, nil, 0)
	if err != nil {
		return Discovery{}, &IdentityError{Op: "list organizations", Err: err}
	}

	if len(summaries) > 0 {
		return Discovery{
			Organizations: c.organizationDetails(ctx, summaries),
			Strategy:      StrategyMembership,
		}, nil
	}

	orgs, err := c.organizationsFromRepositories(ctx)
	if err != nil {
		return Discovery{}, err
	}
	return Discovery{Organizations: orgs, Strategy: StrategyRepositoryOwners}, nil
}

// organizationDetails fetches each organization's detail record. A failed
// fetch keeps the summary.
func (c *Client) organizationDetails(ctx context.Context, summaries []*github.Organization) []*github.Organization {
	out := make([]*github.Organization, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailConcurrency)
	for i, summary := range summaries {
		g.Go(func() error {
			org, err := c.getOrganization(gctx, summary.GetLogin())
			if err != nil {
				c.logger.Warn("failed to fetch organization details, using summary",
					"org", summary.GetLogin(),
					"error", err,
				)
				out[i] = summary
				return nil
			}
			out[i] = org
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) organizationsFromRepositories(ctx context.Context) ([]*github.Organization, error) {
	user, err := c.UserInfo(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("no organization memberships listed, discovering organizations from repository owners",
		"login", user.GetLogin(),
	)

	var logins []string
	seen := make(map[string]bool)
	for _, repo := range c.listUserRepositories(ctx) {
		owner := repo.GetOwner()
		if owner.GetType() != "Organization" || seen[owner.GetLogin()] {
			continue
		}
		seen[owner.GetLogin()] = true
		logins = append(logins, owner.GetLogin())
	}

	found := make([]*github.Organization, len(logins))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailConcurrency)
	for i, login := range logins {
		g.Go(func() error {
			org, err := c.getOrganization(gctx, login)
			if err != nil {
				c.logger.Warn("dropping organization candidate", "org", login, "error", err)
				return nil
			}
			found[i] = org
			return nil
		})
	}
	_ = g.Wait()

	orgs := make([]*github.Organization, 0, len(found))
	for _, org := range found {
		if org != nil {
			orgs = append(orgs, org)
		}
	}
	return orgs, nil
}

// listUserRepositories lists repositories visible to the account, most recently
// updated first. On failure it retries once without the affiliation filter and
// then gives up with an empty list.
func (c *Client) listUserRepositories(ctx context.Context) []*github.Repository {
	list := func(affiliation string) ([]*github.Repository, error) {
		return collect(ctx, c, "user_repos", func(ctx context.Context, opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
			return c.gh.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
				Affiliation: affiliation,
				Sort:        "updated",
				Direction:   "desc",
				ListOptions: opts,
			})
		}, nil, 0)
	}

	repos, err := list(userRepoAffiliation)
	if err == nil {
		return repos
	}
	c.logger.Warn("failed to list user repositories, retrying without affiliation", "error", err)

	repos, err = list("")
	if err != nil {
		c.logger.Error("failed to list user repositories", "error", err)
		return []*github.Repository{}
	}
	return repos
}

func (c *Client) getOrganization(ctx context.Context, login string) (*github.Organization, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	org, _, err := c.gh.Organizations.Get(ctx, login)
	return org, err
}
