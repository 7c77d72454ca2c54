package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// SweepActorID identifies breach events appended by the sweep.
const SweepActorID = "sla-sweep"

// Breach is one breach appended by a sweep.
type Breach struct {
	CaseID string    `json:"caseId"`
	Kind   string    `json:"kind"`
	DueAt  time.Time `json:"dueAt"`
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Checked  int      `json:"checked"`
	Breaches []Breach `json:"breaches"`
	// Skipped counts breaches already recorded on the event stream but not
	// yet visible in the read model.
	Skipped int `json:"skipped"`
}

// Sweeper issues MarkSLABreached for open cases past their deadlines.
type Sweeper struct {
	service *Service
	store   ports.Store
	metrics *metrics.Collector
	now     func() time.Time
}

func NewSweeper(service *Service, store ports.Store, m *metrics.Collector, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = service.metrics
	}
	return &Sweeper{service: service, store: store, metrics: m, now: now}
}

// Sweep runs one pass. Running it again before anything changes appends
// nothing. Failures on one case do not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Checked: len(open), Breaches: []Breach{}}
	var errs []error
	for _, c := range open {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		due := c.DueBreaches(now)
		kinds := make([]string, 0, len(due))
		for kind := range due {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			updated, err := s.service.MarkSLABreached(ctx, types.MarkSLABreachedInput{
				Meta: command.Meta{
					AggregateID: c.ID,
					Actor:       eventlog.SystemActor(SweepActorID),
					OccurredAt:  now,
				},
				Kind: kind,
			})
			switch {
			case errors.Is(err, command.ErrValidationRejected):
				result.Skipped++
				continue
			case err != nil:
				errs = append(errs, err)
				continue
			}
			result.Breaches = append(result.Breaches, Breach{CaseID: c.ID, Kind: kind, DueAt: due[kind]})
			s.metrics.Warn(ctx, metrics.CategorySLA, "sla breached",
				slog.String("case_id", c.ID),
				slog.String("kind", kind),
				slog.String("severity", string(updated.Severity)),
				slog.Time("due_at", due[kind]))
		}
	}
	s.metrics.Info(ctx, metrics.CategorySLA, "sla sweep finished",
		slog.Int("checked", result.Checked),
		slog.Int("breaches", len(result.Breaches)),
		slog.Int("skipped", result.Skipped))
	return result, errors.Join(errs...)
}
