package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

// ProjectorName identifies the support case projector and its checkpoint.
const ProjectorName = "support_cases"

var (
	_ projports.Rebuildable = (*Projector)(nil)
	_ projports.Shadow      = (*shadowProjector)(nil)
)

// Projector materializes support cases.
type Projector struct {
	store   ports.Store
	reducer domain.Reducer
	metrics *metrics.Collector
}

// NewProjector wires the projector with policy. m may be nil.
func NewProjector(store ports.Store, policy sla.Policy, m *metrics.Collector) *Projector {
	return &Projector{store: store, reducer: domain.NewReducer(policy), metrics: m}
}

func (p *Projector) Name() string { return ProjectorName }

func (p *Projector) Project(ctx context.Context, evt eventlog.Event) (bool, error) {
	if evt.AggregateType != eventlog.AggregateCase {
		p.record(ctx, evt, projection.OutcomeIgnored)
		return false, nil
	}
	current, err := p.store.Get(ctx, evt.AggregateID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return false, err
	}
	if current != nil && projection.AlreadyApplied(evt.AggregateSequence, current.LastEventSequence) {
		p.record(ctx, evt, projection.OutcomeSkippedDuplicate)
		return false, nil
	}
	next, err := p.reducer.Apply(current, evt)
	if errors.Is(err, domain.ErrNotInitialized) {
		p.record(ctx, evt, projection.OutcomeSkippedStale)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.store.Save(ctx, *next); err != nil {
		if errors.Is(err, projection.ErrStaleWrite) {
			p.record(ctx, evt, projection.OutcomeSkippedStale)
			return false, nil
		}
		return false, err
	}
	p.record(ctx, evt, projection.OutcomeApplied)
	return true, nil
}

func (p *Projector) record(ctx context.Context, evt eventlog.Event, outcome projection.Outcome) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordProcessed(ProjectorName, string(evt.Type), string(outcome))
	if outcome == projection.OutcomeSkippedStale {
		p.metrics.Warn(ctx, metrics.CategoryProjector, "stale event skipped",
			slog.String("projector", ProjectorName),
			slog.String("aggregate_id", evt.AggregateID),
			slog.Int64("aggregate_sequence", evt.AggregateSequence))
	}
}

// Shadow returns a projector writing to an empty copy of the case table.
func (p *Projector) Shadow(ctx context.Context) (projports.Shadow, error) {
	rebuildable, ok := p.store.(ports.RebuildableStore)
	if !ok {
		return nil, projports.ErrNotRebuildable
	}
	shadow, err := rebuildable.Shadow(ctx)
	if err != nil {
		return nil, err
	}
	return &shadowProjector{
		Projector: &Projector{store: shadow, reducer: p.reducer},
		store:     shadow,
	}, nil
}

type shadowProjector struct {
	*Projector
	store ports.ShadowStore
}

func (s *shadowProjector) Promote(ctx context.Context) error { return s.store.Promote(ctx) }
func (s *shadowProjector) Discard(ctx context.Context) error { return s.store.Discard(ctx) }
