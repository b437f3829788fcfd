package githubapi

import (
	"context"

	"github.com/google/go-github/v71/github"
	"golang.org/x/sync/errgroup"
)

// ListOrgMembers lists the members of org with their full profiles. A failed
// profile fetch keeps the summary record.
func (c *Client) ListOrgMembers(ctx context.Context, org string) ([]*github.User, error) {
	summaries, err := collect(ctx, c, "members", func(ctx context.Context, opts github.ListOptions) ([]*github.User, *github.Response, error) {
		return c.gh.Organizations.ListMembers(ctx, org, &github.ListMembersOptions{ListOptions: opts})
	}, nil, 0)
	if err != nil {
		return []*github.User{}, &ResourceError{Resource: "members", Owner: org, Err: err}
	}

	members := make([]*github.User, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailConcurrency)
	for i, summary := range summaries {
		g.Go(func() error {
			members[i] = summary
			if err := c.acquire(gctx); err != nil {
				return nil
			}
			user, _, err := c.gh.Users.Get(gctx, summary.GetLogin())
			if err != nil {
				c.logger.Debug("failed to fetch member profile, using summary",
					"org", org,
					"login", summary.GetLogin(),
					"error", err,
				)
				return nil
			}
			members[i] = user
			return nil
		})
	}
	_ = g.Wait()
	return members, nil
}
