package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mailledger/internal/shared/logger"
)

var (
	jobTracer      = otel.Tracer("mailledger/scheduler")
	jobMeter       = otel.Meter("mailledger/scheduler")
	jobDuration, _ = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _    = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobSkipped, _  = jobMeter.Int64Counter("scheduler.job.skipped", metric.WithDescription("Triggers dropped because a run was in progress"))
)

const defaultRunTimeout = 10 * time.Minute

// Config holds the schedule for one job.
type Config struct {
	Specs        []string // standard 5-field cron expressions
	RunOnStartup bool
	RunTimeout   time.Duration
	Location     *time.Location
}

// Scheduler triggers a single job on a cron schedule. Runs never overlap:
// a trigger that fires while the job is still running is dropped.
type Scheduler struct {
	cron         *cron.Cron
	job          Job
	runTimeout   time.Duration
	runOnStartup bool
	log          zerolog.Logger

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler validates every spec and registers the job under each.
func NewScheduler(cfg Config, job Job, log zerolog.Logger) (*Scheduler, error) {
	if len(cfg.Specs) == 0 {
		return nil, fmt.Errorf("at least one schedule spec is required")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:          job,
		runTimeout:   cfg.RunTimeout,
		runOnStartup: cfg.RunOnStartup,
		log:          log.With().Str("component", "scheduler").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}

	cronLog := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)

	for _, spec := range cfg.Specs {
		if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
		}
	}

	s.log.Info().Strs("specs", cfg.Specs).Str("job", job.Description()).Msg("scheduler initialized")
	return s, nil
}

// Start launches the cron loop and, if configured, one immediate run.
func (s *Scheduler) Start() {
	if s.runOnStartup {
		s.TriggerNow()
	}
	s.cron.Start()
	s.log.Info().Time("next_run", s.NextRun()).Msg("scheduler started")
}

// TriggerNow runs the job in the background unless a run is in progress.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger()
	}()
}

// NextRun returns the earliest upcoming trigger, or the zero time before Start.
func (s *Scheduler) NextRun() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Shutdown stops new triggers, cancels the running job and waits for it
// up to timeout.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.log.Info().Msg("scheduler shutting down")

	stopCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("timed out waiting for running job")
	}
}

func (s *Scheduler) trigger() {
	if !s.running.TryLock() {
		jobSkipped.Add(s.ctx, 1)
		s.log.Warn().Str("job", s.job.Description()).Msg("previous run still in progress, skipping")
		return
	}
	defer s.running.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.runJob()
}

// runJob executes the job with a timeout, a span and duration metrics.
func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(attribute.String("job.description", s.job.Description())),
	)
	defer span.End()

	ctx = logger.WithContext(ctx, s.log)
	start := time.Now()

	err := s.job.Execute(ctx)
	elapsed := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	jobDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		s.log.Error().Err(err).Str("job", s.job.Description()).Dur("elapsed", elapsed).Msg("scheduled job failed")
		return
	}
	s.log.Debug().Str("job", s.job.Description()).Dur("elapsed", elapsed).Msg("scheduled job completed")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
