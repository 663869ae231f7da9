package main

import (
	"context"

	"mailledger/internal/domain/ingest"
	"mailledger/internal/shared/config"
)

func runIngestDirect(ctx context.Context, c *cli, args []string) (any, error) {
	return runIngest(ctx, c, ingest.ModeDirect, args)
}

func runIngestRaw(ctx context.Context, c *cli, args []string) (any, error) {
	return runIngest(ctx, c, ingest.ModeRaw, args)
}

// runIngest uses --since, then INGEST_SINCE, then the stored watermark.
func runIngest(ctx context.Context, c *cli, mode string, args []string) (any, error) {
	name := "ingest"
	if mode == ingest.ModeRaw {
		name = "ingest-raw"
	}
	fs := newFlagSet(c, name)
	since := fs.String("since", c.cfg.Ingest.Since, "Only messages received at or after this time (RFC3339 or YYYY-MM-DD)")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	bound := config.IngestConfig{Since: *since}
	sinceTime, err := bound.IngestSince()
	if err != nil {
		return nil, invalidInput(err)
	}
	return c.deps.IngestSvc.Run(ctx, mode, sinceTime)
}

type proposeOutput struct {
	Count    int                    `json:"count"`
	Messages []ingest.ProposalInput `json:"messages"`
}

func runPropose(ctx context.Context, c *cli, args []string) (any, error) {
	fs := newFlagSet(c, "propose")
	limit := fs.Int("limit", 50, "Maximum number of messages")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	msgs, err := c.deps.IngestSvc.ProposalInputs(ctx, *limit)
	if err != nil {
		return nil, err
	}
	return proposeOutput{Count: len(msgs), Messages: msgs}, nil
}
