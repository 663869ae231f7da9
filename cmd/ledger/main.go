package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"mailledger/internal/app"
	"mailledger/internal/shared/apperr"
	"mailledger/internal/shared/config"
	"mailledger/internal/shared/logger"
)

const usage = `mailledger - email-to-ledger proposal and commit tool

Usage:
  ledger <command> [subcommand] [options]

Commands:
  batch create     Create a pending batch from a JSON list of proposals
  batch show       Show a batch and its proposals
  batch list       List batches, newest first
  batch commit     Post every proposal of a pending batch to the ledger
  batch cancel     Cancel a pending batch
  ingest           Fetch messages and post them straight to the ledger
  ingest-raw       Fetch messages and store them for review
  propose          List stored messages not yet in a pending batch
  query spend      Total expense spend over a window
  query by-category  Expense spend per category over a window
  fx fetch         Fetch a rate from the provider and cache it
  fx get           Show a cached rate

Examples:
  # Stage proposals written by a reviewer
  ledger batch create --file proposals.json --notes "week 6"

  # Review and commit
  ledger batch show --id 3
  ledger batch commit --id 3

  # Store new mail, then list what still needs proposing
  ledger ingest-raw
  ledger propose --limit 20

  # Spend over the last month
  ledger query spend --days 30
  ledger query by-category --from 2026-02-01 --to 2026-02-28

  # Warm the rate cache before committing a USD batch
  ledger fx fetch --date 2026-02-03 --base USD

Output is JSON on stdout. Errors are JSON on stderr with a non-zero exit code:
2 invalid input, 3 not found, 4 invalid state, 5 upstream or uncached rate.
`

// commandHandler runs one command and returns the value printed as JSON.
type commandHandler func(ctx context.Context, c *cli, args []string) (any, error)

var commands = map[string]commandHandler{
	"batch":      runBatch,
	"ingest":     runIngestDirect,
	"ingest-raw": runIngestRaw,
	"propose":    runPropose,
	"query":      runQuery,
	"fx":         runFX,
}

// cli carries what every command needs.
type cli struct {
	cfg    *config.Config
	deps   *app.Dependencies
	stdin  io.Reader
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	}

	handler, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(stderr, invalidInput(fmt.Errorf("failed to load config: %w", err)))
	}
	log := logger.NewWithOptions(stderr, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	deps, err := app.NewDependencies(ctx, cfg, log)
	if err != nil {
		return fail(stderr, err)
	}
	defer deps.Close()

	c := &cli{cfg: cfg, deps: deps, stdin: stdin, stderr: stderr}
	result, err := handler(logger.WithContext(ctx, log), c, args[1:])
	if err != nil {
		return fail(stderr, err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fail(stderr, fmt.Errorf("failed to write output: %w", err))
	}
	return 0
}

type errorOutput struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func fail(stderr io.Writer, err error) int {
	json.NewEncoder(stderr).Encode(errorOutput{Error: err.Error(), Code: apperr.Code(err)})
	return apperr.ExitCode(err)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(c *cli, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parseFlags wraps flag errors as invalid input.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return fmt.Errorf("%s: help requested: %w", fs.Name(), apperr.ErrInvalidInput)
		}
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, apperr.ErrInvalidInput)
	}
	return nil
}

// subcommand splits "batch show --id 3" into "show" and its flags.
func subcommand(group string, args []string, known ...string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s needs a subcommand (%v): %w", group, known, apperr.ErrInvalidInput)
	}
	for _, k := range known {
		if args[0] == k {
			return k, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("unknown %s subcommand %q: %w", group, args[0], apperr.ErrInvalidInput)
}

func invalidInput(err error) error {
	return fmt.Errorf("%v: %w", err, apperr.ErrInvalidInput)
}
