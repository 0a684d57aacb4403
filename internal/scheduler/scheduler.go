// Package scheduler triggers reconciliation passes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
)

// Runner is the reconciliation entry point the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*lifecycle.RunResult, error)
}

// Scheduler runs a reconciliation pass on every tick of a cron schedule. A
// tick that fires while the previous pass is still running is skipped;
// passes triggered by hand are not affected.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	log     *logger.Logger
	timeout time.Duration
	ctx     context.Context
}

// New parses schedule (standard five-field cron or descriptors such as
// "@every 5m") and prepares the job. Nothing runs until Run is called.
func New(schedule string, runner Runner, log *logger.Logger, timeout time.Duration, loc *time.Location) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		log:     log,
		timeout: timeout,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// pass in flight to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("reconciliation scheduler started", "entries", len(s.cron.Entries()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("reconciliation scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Error("scheduled reconciliation failed", "error", err)
		return
	}
	s.log.Info("scheduled reconciliation finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"evaluated", result.TotalEvaluated,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.With(keysAndValues...).Error("cron: "+msg, "error", err)
}
