package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"mailledger/internal/domain/batch"
	"mailledger/internal/shared/apperr"
)

func runBatch(ctx context.Context, c *cli, args []string) (any, error) {
	sub, rest, err := subcommand("batch", args, "create", "show", "list", "commit", "cancel")
	if err != nil {
		return nil, err
	}

	switch sub {
	case "create":
		return batchCreate(ctx, c, rest)
	case "list":
		return batchList(ctx, c, rest)
	}

	fs := newFlagSet(c, "batch "+sub)
	id := fs.Int64("id", 0, "Batch ID (may also be given as the first argument)")
	if err := parseFlags(fs, rest); err != nil {
		return nil, err
	}
	batchID, err := resolveID(*id, fs.Args())
	if err != nil {
		return nil, err
	}

	switch sub {
	case "show":
		return c.deps.BatchSvc.Show(ctx, batchID)
	case "commit":
		return c.deps.BatchSvc.Commit(ctx, batchID)
	default:
		return c.deps.BatchSvc.Cancel(ctx, batchID)
	}
}

func batchCreate(ctx context.Context, c *cli, args []string) (any, error) {
	fs := newFlagSet(c, "batch create")
	file := fs.String("file", "-", "Proposals JSON file, or - for stdin")
	notes := fs.String("notes", "", "Free-text notes stored on the batch")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	var r io.Reader = c.stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return nil, fmt.Errorf("failed to open proposals file: %v: %w", err, apperr.ErrInvalidInput)
		}
		defer f.Close()
		r = f
	}

	items, err := batch.DecodeProposals(r)
	if err != nil {
		return nil, err
	}
	return c.deps.BatchSvc.Create(ctx, items, *notes)
}

type batchListOutput struct {
	Count   int            `json:"count"`
	Batches []*batch.Batch `json:"batches"`
}

func batchList(ctx context.Context, c *cli, args []string) (any, error) {
	fs := newFlagSet(c, "batch list")
	status := fs.String("status", "", "Only batches in this status (pending, committed, cancelled)")
	limit := fs.Int("limit", 20, "Maximum number of batches")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	batches, err := c.deps.BatchSvc.List(ctx, *status, *limit)
	if err != nil {
		return nil, err
	}
	return batchListOutput{Count: len(batches), Batches: batches}, nil
}

func resolveID(flagID int64, positional []string) (int64, error) {
	if flagID == 0 && len(positional) > 0 {
		id, err := strconv.ParseInt(positional[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("batch id %q: %w", positional[0], apperr.ErrInvalidInput)
		}
		flagID = id
	}
	if flagID <= 0 {
		return 0, fmt.Errorf("--id is required: %w", apperr.ErrInvalidInput)
	}
	return flagID, nil
}
