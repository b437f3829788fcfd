package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mscno/ghsync/server"
)

type SyncCmd struct {
	StoreFlags `embed:""`
	SyncFlags  `embed:""`

	UserID string `arg:"" help:"Integration user id"`
}

func (c *SyncCmd) Run(ctx *cliCtx) error {
	id, err := userID(c.UserID)
	if err != nil {
		return err
	}
	return withService(ctx, &c.StoreFlags, &c.SyncFlags, func(svc *server.Service) error {
		report, err := svc.SyncNow(ctx, id)
		if report != nil {
			printReport(ctx, report)
		}
		return err
	})
}

func printReport(ctx *cliCtx, report *server.RunReport) {
	fmt.Fprintf(ctx.Out, "Synchronization %s for %s\n", report.Outcome(), report.UserID)
	if report.Strategy != "" {
		fmt.Fprintf(ctx.Out, "  Organizations: %d (%s)\n", report.Organizations, report.Strategy)
	} else {
		fmt.Fprintf(ctx.Out, "  Organizations: %d\n", report.Organizations)
	}
	fmt.Fprintf(ctx.Out, "  Repositories: %d\n", report.Repositories)
	fmt.Fprintf(ctx.Out, "  Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	stored := report.Stored()
	collections := make([]string, 0, len(stored))
	for c := range stored {
		collections = append(collections, c)
	}
	sort.Strings(collections)
	for _, c := range collections {
		fmt.Fprintf(ctx.Out, "  %s: %d\n", c, stored[c])
	}
	for _, u := range report.Degraded() {
		fmt.Fprintf(ctx.Out, "  degraded %s %s: %s\n", u.Kind.Collection(), u.Scope, u.Reason)
	}
	if report.Err != nil {
		fmt.Fprintf(ctx.Out, "  error: %v\n", report.Err)
	}
}

type StatusCmd struct {
	StoreFlags `embed:""`
	SyncFlags  `embed:""`

	UserID string `arg:"" help:"Integration user id"`
	JSON   bool   `help:"Print as JSON" name:"json"`
}

func (c *StatusCmd) Run(ctx *cliCtx) error {
	id, err := userID(c.UserID)
	if err != nil {
		return err
	}
	return withService(ctx, &c.StoreFlags, &c.SyncFlags, func(svc *server.Service) error {
		status, err := svc.Status(ctx, id)
		if err != nil {
			return err
		}
		counts, err := svc.Counts(ctx, id)
		if err != nil {
			return err
		}
		if c.JSON {
			enc := json.NewEncoder(ctx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"status": status, "counts": counts})
		}

		if !status.Connected {
			fmt.Fprintf(ctx.Out, "%s is not connected\n", id)
			return nil
		}
		fmt.Fprintf(ctx.Out, "%s is connected as %s\n", id, status.Username)
		if status.LastSyncedAt != nil {
			fmt.Fprintf(ctx.Out, "  Last synced: %s\n", status.LastSyncedAt.Format("2006-01-02 15:04:05 MST"))
		} else {
			fmt.Fprintf(ctx.Out, "  Last synced: never\n")
		}
		if run := status.LastRun; run != nil && run.Fatal {
			fmt.Fprintf(ctx.Out, "  Last run failed: %s\n", run.Error)
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(ctx.Out, "  %s: %d\n", name, counts[name])
		}
		return nil
	})
}

type DisconnectCmd struct {
	StoreFlags `embed:""`
	SyncFlags  `embed:""`

	UserID string `arg:"" help:"Integration user id"`
}

func (c *DisconnectCmd) Run(ctx *cliCtx) error {
	id, err := userID(c.UserID)
	if err != nil {
		return err
	}
	return withService(ctx, &c.StoreFlags, &c.SyncFlags, func(svc *server.Service) error {
		if err := svc.Disconnect(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "Disconnected %s\n", id)
		return nil
	})
}
