package application

import (
	"context"
	"errors"
	"log/slog"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

// ProjectorName identifies the work item projector and its checkpoint.
const ProjectorName = "work_items"

var (
	_ projports.Rebuildable = (*Projector)(nil)
	_ projports.Shadow      = (*shadowProjector)(nil)
)

// Projector materializes work item details and the queues they belong to.
type Projector struct {
	store   ports.Store
	metrics *metrics.Collector
}

// NewProjector wires the projector. m may be nil.
func NewProjector(store ports.Store, m *metrics.Collector) *Projector {
	return &Projector{store: store, metrics: m}
}

func (p *Projector) Name() string { return ProjectorName }

// Project folds one event. Queue rows touched by the item are recomputed
// from the detail rows, including the previous queue on reassignment.
func (p *Projector) Project(ctx context.Context, evt eventlog.Event) (bool, error) {
	if evt.AggregateType != eventlog.AggregateWorkItem {
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

	next, err := domain.Apply(current, evt)
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

	keys := []domain.QueueKey{next.Queue}
	if current != nil && current.Queue != next.Queue {
		keys = append(keys, current.Queue)
	}
	for _, key := range keys {
		if err := p.refreshQueue(ctx, key, evt); err != nil {
			return false, err
		}
	}
	p.record(ctx, evt, projection.OutcomeApplied)
	return true, nil
}

func (p *Projector) refreshQueue(ctx context.Context, key domain.QueueKey, evt eventlog.Event) error {
	items, err := p.store.ListByQueue(ctx, key)
	if err != nil {
		return err
	}
	seq := evt.GlobalSequence
	existing, err := p.store.GetQueue(ctx, key)
	switch {
	case err == nil && existing.LastGlobalSequence > seq:
		seq = existing.LastGlobalSequence
	case err != nil && !errors.Is(err, ports.ErrQueueNotFound):
		return err
	}
	return p.store.SaveQueue(ctx, domain.Summarize(key, items, seq, evt.OccurredAt))
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

// Shadow returns a projector writing to an empty copy of the read model.
func (p *Projector) Shadow(ctx context.Context) (projports.Shadow, error) {
	rebuildable, ok := p.store.(ports.RebuildableStore)
	if !ok {
		return nil, projports.ErrNotRebuildable
	}
	shadow, err := rebuildable.Shadow(ctx)
	if err != nil {
		return nil, err
	}
	return &shadowProjector{Projector: NewProjector(shadow, nil), store: shadow}, nil
}

type shadowProjector struct {
	*Projector
	store ports.ShadowStore
}

func (s *shadowProjector) Promote(ctx context.Context) error { return s.store.Promote(ctx) }
func (s *shadowProjector) Discard(ctx context.Context) error { return s.store.Discard(ctx) }
