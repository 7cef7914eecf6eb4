// Package scheduler runs periodic guide regeneration on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner. Jobs never overlap with themselves and a
// panicking job is logged instead of crashing the process.
type Scheduler struct {
	cron *cron.Cron
}

// slogLogger adapts cron's logger interface to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("scheduler.cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("scheduler.cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewScheduler creates a stopped scheduler using standard 5-field cron
// expressions (min, hour, dom, month, dow) plus descriptors like @daily.
func NewScheduler() *Scheduler {
	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c}
}

// AddJob schedules task under expr. The context passed to task is ctx.
func (s *Scheduler) AddJob(ctx context.Context, name, expr string, task func(context.Context)) error {
	_, err := s.cron.AddFunc(expr, func() {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		slog.Info("scheduler.Scheduler: job starting", "job", name)
		task(ctx)
		slog.Info("scheduler.Scheduler: job finished", "job", name, "duration", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", expr, name, err)
	}
	slog.Debug("scheduler.Scheduler.AddJob: scheduled", "job", name, "expr", expr)
	return nil
}

// Next returns the earliest upcoming run, or the zero time when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
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

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Run starts the scheduler and blocks until ctx is done, then waits for any
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	s.Stop()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
