package githubapi

import (
	"context"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/mscno/ghsync/pkg/metrics"
)

type pageFunc[T any] func(ctx context.Context, opts github.ListOptions) ([]T, *github.Response, error)

// collect pages through a listing until a page shorter than the page size,
// keeping the items accepted by keep. A limit above zero stops early and
// truncates to exactly limit items. Continuation is judged on the raw page
// length, before filtering.
func collect[T any](ctx context.Context, c *Client, resource string, fetch pageFunc[T], keep func(T) bool, limit int) ([]T, error) {
	var (
		out  []T
		prev *github.Response
	)
	for page := 1; ; page++ {
		if page > 1 {
			if err := c.throttle(ctx, prev); err != nil {
				return out, err
			}
		}
		if err := c.acquire(ctx); err != nil {
			return out, err
		}

		items, resp, err := fetch(ctx, github.ListOptions{Page: page, PerPage: c.pageSize})
		if err != nil {
			return out, err
		}
		metrics.APIPagesTotal.WithLabelValues(resource).Inc()

		for _, item := range items {
			if keep == nil || keep(item) {
				out = append(out, item)
			}
		}
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if len(items) < c.pageSize {
			return out, nil
		}
		prev = resp
	}
}

// throttle waits before a continuation page: the fixed page delay, or until
// the quota reset when the previous response reported none left.
func (c *Client) throttle(ctx context.Context, prev *github.Response) error {
	wait, reason := c.pageDelay, "delay"
	if prev != nil && prev.Rate.Limit > 0 && prev.Rate.Remaining == 0 {
		untilReset := time.Until(prev.Rate.Reset.Time)
		if untilReset > c.maxQuotaWait {
			untilReset = c.maxQuotaWait
		}
		if untilReset > wait {
			wait, reason = untilReset, "quota"
			c.logger.Warn("github quota exhausted, pausing until reset",
				"reset", prev.Rate.Reset.Time,
				"wait", wait,
			)
		}
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	metrics.APIThrottleSeconds.WithLabelValues(reason).Add(wait.Seconds())
	return nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
