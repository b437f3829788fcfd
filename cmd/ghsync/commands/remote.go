package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mscno/ghsync/pkg/client"
)

// RemoteCmd drives a running server instead of opening the store directly.
type RemoteCmd struct {
	Server string `help:"ghsync server URL" default:"http://localhost:8080" env:"GHSYNC_SERVER_URL"`

	Status     RemoteStatusCmd     `cmd:"" help:"Show the integration status from the server"`
	Resync     RemoteResyncCmd     `cmd:"" help:"Start a background synchronization on the server"`
	Disconnect RemoteDisconnectCmd `cmd:"" help:"Remove an integration on the server"`
	Records    RemoteRecordsCmd    `cmd:"" help:"List mirrored records of one collection"`
}

func (c *RemoteCmd) client(ctx *cliCtx) (*client.APIClient, error) {
	return client.NewAPIClient(client.ClientConfig{ServerURL: c.Server, Logger: ctx.Logger})
}

type RemoteStatusCmd struct {
	UserID string `arg:"" help:"Integration user id"`
}

func (c *RemoteStatusCmd) Run(ctx *cliCtx, remote *RemoteCmd) error {
	api, err := remote.client(ctx)
	if err != nil {
		return err
	}
	status, err := api.Status(ctx, c.UserID)
	if err != nil {
		return err
	}
	if !status.Connected {
		fmt.Fprintf(ctx.Out, "%s is not connected\n", c.UserID)
		return nil
	}
	fmt.Fprintf(ctx.Out, "%s is connected as %s\n", c.UserID, status.Username)
	if status.SyncInProgress {
		fmt.Fprintf(ctx.Out, "  Synchronization in progress\n")
	}
	counts, err := api.Counts(ctx, c.UserID)
	if err != nil {
		return err
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
}

type RemoteResyncCmd struct {
	UserID string `arg:"" help:"Integration user id"`
}

func (c *RemoteResyncCmd) Run(ctx *cliCtx, remote *RemoteCmd) error {
	api, err := remote.client(ctx)
	if err != nil {
		return err
	}
	if err := api.Resync(ctx, c.UserID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Synchronization started for %s\n", c.UserID)
	return nil
}

type RemoteDisconnectCmd struct {
	UserID string `arg:"" help:"Integration user id"`
}

func (c *RemoteDisconnectCmd) Run(ctx *cliCtx, remote *RemoteCmd) error {
	api, err := remote.client(ctx)
	if err != nil {
		return err
	}
	if err := api.Disconnect(ctx, c.UserID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Disconnected %s\n", c.UserID)
	return nil
}

type RemoteRecordsCmd struct {
	Collection string `arg:"" help:"Collection name, e.g. commits or pull-requests"`
	UserID     string `arg:"" help:"Integration user id"`
	Page       int    `help:"Page number" default:"1"`
	PageSize   int    `help:"Records per page" default:"20"`
}

func (c *RemoteRecordsCmd) Run(ctx *cliCtx, remote *RemoteCmd) error {
	api, err := remote.client(ctx)
	if err != nil {
		return err
	}
	page, err := api.Collection(ctx, c.Collection, c.UserID, c.Page, c.PageSize)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(ctx.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}
