package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailledger/internal/domain/ingest"
	"mailledger/internal/shared/logger"
)

// Job is a unit of scheduled work.
type Job interface {
	// Execute runs the job. The context carries the run timeout.
	Execute(ctx context.Context) error

	// Description names the job in logs and spans.
	Description() string
}

// IngestRunner is the part of ingest.Service a scheduled run needs.
type IngestRunner interface {
	Run(ctx context.Context, mode string, since *time.Time) (*ingest.Result, error)
}

// IngestJob runs one ingestion pass from the mode's watermark.
type IngestJob struct {
	runner IngestRunner
	mode   string
	log    zerolog.Logger
}

func NewIngestJob(runner IngestRunner, mode string) *IngestJob {
	return &IngestJob{runner: runner, mode: mode, log: logger.Nop()}
}

// WithLogger sets the logger for the job
func (j *IngestJob) WithLogger(log zerolog.Logger) *IngestJob {
	j.log = log.With().Str("component", "ingest_job").Logger()
	return j
}

func (j *IngestJob) Execute(ctx context.Context) error {
	result, err := j.runner.Run(ctx, j.mode, nil)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", j.mode, err)
	}

	j.log.Info().
		Str("run_id", result.RunID).
		Int("ingested", result.Ingested).
		Int("duplicates", result.Duplicates).
		Int("flagged", result.Flagged).
		Msg("scheduled ingest finished")
	return nil
}

func (j *IngestJob) Description() string {
	return "ingest " + j.mode
}
