// Package scheduler runs periodic background jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. It gets a context bounded by the job timeout.
type Job func(ctx context.Context) error

type Scheduler struct {
	c       *cron.Cron
	timeout time.Duration
}

// New builds a scheduler whose jobs never overlap with themselves and whose
// panics are recovered.
func New(timeout time.Duration) *Scheduler {
	lg := cron.VerbosePrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg))),
		timeout: timeout,
	}
}

// Add registers job under name at spec ("@every 1m", "*/5 * * * *", ...).
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.c.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			slog.Error("scheduler: job failed", "job", name, "err", err, "took", time.Since(start))
			return
		}
		slog.Debug("scheduler: job done", "job", name, "took", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	slog.Info("scheduler: job registered", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		slog.Warn("scheduler: stop timed out with jobs still running")
	}
}

// runAll fires every registered job once, synchronously.
func (s *Scheduler) runAll() {
	for _, e := range s.c.Entries() {
		e.WrappedJob.Run()
	}
}
