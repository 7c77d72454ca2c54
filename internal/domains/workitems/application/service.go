package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	resolution "github.com/Apurer/worktrack/internal/domains/resolution/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// Service handles work item commands. State is loaded by folding the
// aggregate stream on top of the cached projection.
type Service struct {
	events  eventports.EventStore
	store   ports.Store
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the service.
type Option func(*Service)

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time used when a command carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the work item command handler.
func NewService(events eventports.EventStore, store ports.Store, opts ...Option) *Service {
	s := &Service{
		events: events,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(metrics.WithLogger(s.logger))
	}
	return s
}

// decideFunc turns the current state into the payloads to append.
// current is nil when the aggregate has no events yet.
var _ ports.Service = (*Service)(nil)

type decideFunc func(current *domain.WorkItem, at time.Time) ([]eventlog.Payload, error)

func (s *Service) CreateWorkItem(ctx context.Context, in types.CreateWorkItemInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandCreateWorkItem, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if current != nil {
			return nil, command.Reject("work item %s already exists", in.AggregateID)
		}
		if strings.TrimSpace(in.Title) == "" {
			return nil, command.Reject("title is required")
		}
		if err := validateQueue(in.UserID, in.Lens, in.QueueID); err != nil {
			return nil, err
		}
		if in.Priority != "" {
			if _, err := domain.ParseTier(in.Priority); err != nil {
				return nil, mapError(err)
			}
		}
		var score *int
		if in.Score != nil {
			v := domain.ClampScore(*in.Score)
			score = &v
		}
		return []eventlog.Payload{eventlog.WorkItemCreated{
			Title:    in.Title,
			UserID:   in.UserID,
			Lens:     in.Lens,
			QueueID:  in.QueueID,
			Priority: in.Priority,
			Score:    score,
		}}, nil
	})
}

func (s *Service) UpdatePriority(ctx context.Context, in types.UpdatePriorityInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandUpdatePriority, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.NewScore < domain.MinScore || in.NewScore > domain.MaxScore {
			return nil, command.Reject("score %d is outside [%d, %d]", in.NewScore, domain.MinScore, domain.MaxScore)
		}
		return []eventlog.Payload{eventlog.WorkItemPriorityUpdated{NewScore: in.NewScore, Reason: in.Reason}}, nil
	})
}

func (s *Service) AdjustPriority(ctx context.Context, in types.AdjustPriorityInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandAdjustPriority, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.Delta == 0 {
			return nil, command.Reject("delta must not be zero")
		}
		return []eventlog.Payload{eventlog.WorkItemPriorityAdjusted{Delta: in.Delta, Reason: in.Reason}}, nil
	})
}

func (s *Service) AttachSignal(ctx context.Context, in types.AttachSignalInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandAttachSignal, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.SignalID == "" || in.SignalType == "" {
			return nil, command.Reject("signal id and type are required")
		}
		if current.HasSignal(in.SignalID) {
			return nil, command.Reject("signal %s is already attached", in.SignalID)
		}
		return []eventlog.Payload{eventlog.WorkItemSignalAttached{SignalID: in.SignalID, SignalType: in.SignalType, Delta: in.Delta}}, nil
	})
}

func (s *Service) AssignWorkItem(ctx context.Context, in types.AssignWorkItemInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandAssignWorkItem, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if err := validateQueue(in.UserID, in.Lens, in.QueueID); err != nil {
			return nil, err
		}
		if current.Queue == (domain.QueueKey{UserID: in.UserID, Lens: in.Lens, QueueID: in.QueueID}) {
			return nil, command.Reject("work item %s is already in queue %s", in.AggregateID, current.Queue)
		}
		return []eventlog.Payload{eventlog.WorkItemAssigned{UserID: in.UserID, Lens: in.Lens, QueueID: in.QueueID}}, nil
	})
}

func (s *Service) SnoozeWorkItem(ctx context.Context, in types.SnoozeWorkItemInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandSnoozeWorkItem, in.Meta, func(current *domain.WorkItem, at time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.Status == domain.StatusResolved {
			return nil, command.Reject("cannot snooze resolved work item %s", in.AggregateID)
		}
		if !in.Until.After(at) {
			return nil, command.Reject("snooze time must be in the future")
		}
		return []eventlog.Payload{eventlog.WorkItemSnoozed{Until: in.Until.UTC()}}, nil
	})
}

func (s *Service) ResolveWorkItem(ctx context.Context, in types.ResolveWorkItemInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandResolveWorkItem, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.Status == domain.StatusResolved {
			return nil, command.Reject("work item %s is already resolved", in.AggregateID)
		}
		return []eventlog.Payload{eventlog.WorkItemResolved{Reason: in.Reason}}, nil
	})
}

func (s *Service) ReopenWorkItem(ctx context.Context, in types.ReopenWorkItemInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandReopenWorkItem, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.Status == domain.StatusOpen {
			return nil, command.Reject("work item %s is already open", in.AggregateID)
		}
		return []eventlog.Payload{eventlog.WorkItemReopened{Reason: in.Reason}}, nil
	})
}

// ApplyMeetingTrigger records the trigger and appends a resolution or a
// reopen in the same batch when the rules call for it.
func (s *Service) ApplyMeetingTrigger(ctx context.Context, in types.ApplyMeetingTriggerInput) (*domain.WorkItem, error) {
	return s.execute(ctx, types.CommandApplyMeetingTrigger, in.Meta, func(current *domain.WorkItem, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireItem(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.Trigger == "" {
			return nil, command.Reject("trigger is required")
		}
		if in.NotificationID != "" && current.HasNotification(in.NotificationID) {
			return nil, fmt.Errorf("%w: %s", ports.ErrDuplicateNotification, in.NotificationID)
		}
		payloads := []eventlog.Payload{eventlog.WorkItemMeetingUpdated{
			MeetingID:      in.MeetingID,
			Trigger:        in.Trigger,
			NotificationID: in.NotificationID,
		}}

		switch {
		case current.Status != domain.StatusResolved && in.Trigger != resolution.TriggerMeetingCancelled:
			for _, sig := range current.Signals {
				decision := resolution.Resolve(sig.Type, in.Trigger, current.HasBookedMeeting)
				if decision.Resolves {
					payloads = append(payloads, eventlog.WorkItemResolved{Reason: decision.Reason, ResolvedBy: sig.Type})
					break
				}
			}
		case current.Status == domain.StatusResolved && in.Trigger == resolution.TriggerMeetingCancelled && current.ResolvedBy != "":
			if decision := resolution.ShouldReopenOnCancel(current.ResolvedBy); decision.ShouldReopen {
				payloads = append(payloads, eventlog.WorkItemReopened{Reason: decision.Reason})
			}
		}
		return payloads, nil
	})
}

// Get returns the materialized work item.
func (s *Service) Get(ctx context.Context, id string) (*domain.WorkItem, error) {
	return s.store.Get(ctx, id)
}

// GetQueue returns the materialized queue summary.
func (s *Service) GetQueue(ctx context.Context, key domain.QueueKey) (*domain.QueueSummary, error) {
	return s.store.GetQueue(ctx, key)
}

func (s *Service) execute(ctx context.Context, commandType string, meta command.Meta, decide decideFunc) (item *domain.WorkItem, err error) {
	defer func() {
		s.metrics.RecordCommand(commandType, err)
		if err != nil {
			s.metrics.Warn(ctx, metrics.CategoryCommand, "command rejected",
				slog.String("command_type", commandType),
				slog.String("aggregate_id", meta.AggregateID),
				slog.String("error", err.Error()))
		}
	}()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	at := meta.OccurredAt
	if at.IsZero() {
		at = s.now().UTC()
	}

	attempts := meta.Attempts()
	for attempt := 1; ; attempt++ {
		current, err := s.load(ctx, meta.AggregateID)
		if err != nil {
			return nil, err
		}
		payloads, err := decide(current, at)
		if err != nil {
			return nil, err
		}

		expected := meta.ExpectedSequence
		if expected == nil {
			var seq int64
			if current != nil {
				seq = current.LastEventSequence
			}
			expected = &seq
		}
		appended, err := s.events.Append(ctx, eventports.AppendInput{
			AggregateType:    eventlog.AggregateWorkItem,
			AggregateID:      meta.AggregateID,
			ExpectedSequence: expected,
			Actor:            meta.Actor,
			OccurredAt:       at,
			Payloads:         payloads,
		})
		if errors.Is(err, eventports.ErrConcurrencyConflict) && attempt < attempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, evt := range appended {
			s.metrics.RecordAppended(string(evt.Type))
		}
		next, err := domain.Fold(current, appended)
		if err != nil {
			return nil, err
		}
		s.metrics.Info(ctx, metrics.CategoryCommand, "command accepted",
			slog.String("command_type", commandType),
			slog.String("aggregate_id", meta.AggregateID),
			slog.Int("events", len(appended)),
			slog.Int64("aggregate_sequence", next.LastEventSequence))
		return next, nil
	}
}

// load returns the current state, or nil when the aggregate has no events.
func (s *Service) load(ctx context.Context, id string) (*domain.WorkItem, error) {
	cached, err := s.store.Get(ctx, id)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	var from int64
	if cached != nil {
		from = cached.LastEventSequence
	}
	events, err := s.events.ReadAggregateStream(ctx, id, from)
	if err != nil {
		return nil, err
	}
	state, err := domain.Fold(cached, events)
	if err != nil {
		return nil, fmt.Errorf("load work item %s: %w", id, err)
	}
	return state, nil
}

func requireItem(current *domain.WorkItem, id string) error {
	if current == nil {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	return nil
}

func validateQueue(userID, lens, queueID string) error {
	if userID == "" || lens == "" || queueID == "" {
		return command.Reject("user_id, lens and queue_id are required")
	}
	return nil
}
