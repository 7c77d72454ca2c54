// Package scheduler triggers periodic jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. The context is cancelled when Stop is called
// or the run exceeds its timeout.
type Job func(ctx context.Context) error

// Scheduler runs a single named job. Overlapping runs are skipped.
type Scheduler struct {
	cron    *cron.Cron
	name    string
	spec    string
	timeout time.Duration
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New parses spec (standard five-field cron or @every/@hourly descriptors)
// and registers job. timeout bounds each run; zero means one minute.
func New(name, spec string, timeout time.Duration, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		name:    name,
		spec:    spec,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	_, err := s.cron.AddFunc(spec, func() {
		runCtx, done := context.WithTimeout(s.ctx, s.timeout)
		defer done()
		started := time.Now()
		if err := job(runCtx); err != nil {
			s.logger.Warn("scheduled job failed",
				slog.String("job", s.name),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("scheduled job finished",
			slog.String("job", s.name),
			slog.Duration("took", time.Since(started)))
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("job", s.name), slog.String("schedule", s.spec))
}

// Stop cancels the running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped", slog.String("job", s.name))
}
