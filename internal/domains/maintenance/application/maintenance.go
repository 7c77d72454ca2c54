// Package application runs the periodic upkeep pass: projector catch-up,
// the SLA sweep and deferred side effects.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	caseapp "github.com/Apurer/worktrack/internal/domains/cases/application"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
	"github.com/Apurer/worktrack/internal/platform/metrics"
)

// Sweeper flags SLA breaches on open cases.
type Sweeper interface {
	Sweep(ctx context.Context) (caseapp.SweepResult, error)
}

// DeferredProcessor delivers side effects deferred by rate limiting.
type DeferredProcessor interface {
	ProcessDeferred(ctx context.Context) (webhookapp.DeferredResult, error)
}

// Projections catches every projector up with the log.
type Projections interface {
	CatchUpAll(ctx context.Context) ([]projapp.CatchUpResult, error)
}

// Result summarizes one pass. Skipped is set when another pass held the lock.
type Result struct {
	Skipped    bool                      `json:"skipped"`
	StartedAt  time.Time                 `json:"startedAt"`
	Sweep      caseapp.SweepResult       `json:"sweep"`
	Deferred   webhookapp.DeferredResult `json:"deferred"`
	Projectors []projapp.CatchUpResult   `json:"projectors"`
}

// Service runs at most one pass at a time in process. Overlapping callers
// get a skipped result instead of waiting.
type Service struct {
	sweeper     Sweeper
	deferred    DeferredProcessor
	projections Projections
	metrics     *metrics.Collector
	now         func() time.Time
	running     sync.Mutex
}

func NewService(sweeper Sweeper, deferred DeferredProcessor, projections Projections, m *metrics.Collector, now func() time.Time) *Service {
	if m == nil {
		m = metrics.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{sweeper: sweeper, deferred: deferred, projections: projections, metrics: m, now: now}
}

// Run catches the read models up, sweeps, delivers deferred side effects
// and catches up again so new breach events are visible on return. A
// failing step does not stop the later ones.
func (s *Service) Run(ctx context.Context) (Result, error) {
	result := Result{StartedAt: s.now().UTC()}
	if !s.running.TryLock() {
		result.Skipped = true
		s.metrics.Info(ctx, metrics.CategorySLA, "maintenance pass already running")
		return result, nil
	}
	defer s.running.Unlock()

	var errs []error
	if _, err := s.projections.CatchUpAll(ctx); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		errs = append(errs, err)
	}

	sweep, err := s.sweeper.Sweep(ctx)
	result.Sweep = sweep
	if err != nil {
		errs = append(errs, err)
	}

	if s.deferred != nil {
		deferred, err := s.deferred.ProcessDeferred(ctx)
		result.Deferred = deferred
		if err != nil {
			errs = append(errs, err)
		}
	}

	projectors, err := s.projections.CatchUpAll(ctx)
	result.Projectors = projectors
	if err != nil {
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	attrs := []slog.Attr{
		slog.Int("cases_checked", sweep.Checked),
		slog.Int("breaches", len(sweep.Breaches)),
		slog.Int("deferred_sent", result.Deferred.Sent),
	}
	if err != nil {
		s.metrics.Error(ctx, metrics.CategorySLA, "maintenance pass failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.metrics.Info(ctx, metrics.CategorySLA, "maintenance pass finished", attrs...)
	}
	return result, err
}
