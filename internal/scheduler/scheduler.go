// Package scheduler fires the periodic notification drivers from inside the
// API process on a cron spec. A tick takes a lock first so only one replica
// runs it; the drivers' own time windows decide which schools are due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/hifz-notify/internal/metrics"
)

// DefaultSpec fires every 10 minutes, inside the ±7 minute driver windows.
const DefaultSpec = "*/10 * * * *"

// Job is one periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcJob) Name() string                  { return f.name }
func (f funcJob) Run(ctx context.Context) error { return f.fn(ctx) }

// Func adapts fn to Job.
func Func(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Params configure a Scheduler.
type Params struct {
	Spec    string
	Jobs    []Job
	Lock    Lock
	Metrics *metrics.JobMetrics
	// Timeout bounds one tick. Zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Scheduler runs its jobs on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	jobs    []Job
	lock    Lock
	metrics *metrics.JobMetrics
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a scheduler and validates the cron expression.
func New(p Params) (*Scheduler, error) {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Spec == "" {
		p.Spec = DefaultSpec
	}
	if p.Lock == nil {
		p.Lock = &LocalLock{}
	}
	if _, err := cron.ParseStandard(p.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", p.Spec, err)
	}
	if len(p.Jobs) == 0 {
		return nil, errors.New("scheduler needs at least one job")
	}

	logger := p.Logger.With("component", "scheduler")
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{logger})),
		spec:    p.Spec,
		jobs:    p.Jobs,
		lock:    p.Lock,
		metrics: p.Metrics,
		timeout: p.Timeout,
		logger:  logger,
	}, nil
}

// Start registers the tick and starts the cron loop. Ticks run with ctx;
// cancel it or call Stop to end.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "jobs", len(s.jobs))
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick runs every job once under the lock. A failing job does not stop the
// others.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logger.Error("lock acquire failed", "error", err)
		return
	}
	if !locked {
		s.logger.Info("another instance holds the scheduler lock; skipping tick")
		return
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("lock release failed", "error", err)
		}
	}()

	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), elapsed)

	if err != nil {
		s.logger.Error("job failed", "job", job.Name(), "duration_ms", elapsed.Milliseconds(), "error", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logger.Debug("job completed", "job", job.Name(), "duration_ms", elapsed.Milliseconds())
	s.metrics.IncSuccess(job.Name())
}

// cronLogger routes robfig/cron's logger through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
