package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

var _ ports.Service = (*Service)(nil)

// Service handles support case commands.
type Service struct {
	events  eventports.EventStore
	store   ports.Store
	reducer domain.Reducer
	replies ports.ReplyListener
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPolicy replaces the default SLA policy. The projector must use the
// same policy.
func WithPolicy(p sla.Policy) Option {
	return func(s *Service) {
		s.reducer = domain.NewReducer(p)
	}
}

// WithReplyListener registers the side effect run after a customer reply
// is appended.
func WithReplyListener(l ports.ReplyListener) Option {
	return func(s *Service) {
		s.replies = l
	}
}

func NewService(events eventports.EventStore, store ports.Store, opts ...Option) *Service {
	s := &Service{
		events:  events,
		store:   store,
		reducer: domain.NewReducer(sla.DefaultPolicy()),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(metrics.WithLogger(s.logger))
	}
	return s
}

// SetReplyListener wires the listener after construction, for listeners
// that themselves depend on the service.
func (s *Service) SetReplyListener(l ports.ReplyListener) {
	s.replies = l
}

type decideFunc func(current *domain.Case, at time.Time) ([]eventlog.Payload, error)

func (s *Service) OpenCase(ctx context.Context, in types.OpenCaseInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandOpenCase, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if current != nil {
			return nil, command.Reject("case %s already exists", in.AggregateID)
		}
		if strings.TrimSpace(in.Subject) == "" {
			return nil, command.Reject("subject is required")
		}
		if in.CustomerID == "" {
			return nil, command.Reject("customer_id is required")
		}
		severity, err := sla.ParseSeverity(in.Severity)
		if err != nil {
			return nil, mapError(err)
		}
		return []eventlog.Payload{eventlog.CaseOpened{
			Subject:    in.Subject,
			CustomerID: in.CustomerID,
			Severity:   string(severity),
			Category:   in.Category,
		}}, nil
	})
}

func (s *Service) RecordFirstResponse(ctx context.Context, in types.RecordFirstResponseInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandRecordFirstResponse, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireActive(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.FirstRespondedAt != nil {
			return nil, command.Reject("case %s already has a first response", in.AggregateID)
		}
		if in.ResponderID == "" {
			return nil, command.Reject("responder_id is required")
		}
		return []eventlog.Payload{eventlog.CaseFirstResponded{ResponderID: in.ResponderID}}, nil
	})
}

func (s *Service) ChangeSeverity(ctx context.Context, in types.ChangeSeverityInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandChangeSeverity, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireActive(current, in.AggregateID); err != nil {
			return nil, err
		}
		severity, err := sla.ParseSeverity(in.Severity)
		if err != nil {
			return nil, mapError(err)
		}
		if severity == current.Severity {
			return nil, command.Reject("case %s is already %s", in.AggregateID, severity)
		}
		return []eventlog.Payload{eventlog.CaseSeverityChanged{Severity: string(severity)}}, nil
	})
}

// RecordCustomerReply appends the reply and then notifies the reply
// listener. A listener failure is logged; the reply stays recorded. A
// message id the case already holds returns ErrDuplicateMessage after
// notifying the listener again, so an acknowledgement lost to a transient
// failure gets another attempt. Listeners dedupe by message id.
func (s *Service) RecordCustomerReply(ctx context.Context, in types.RecordCustomerReplyInput) (*domain.Case, error) {
	c, err := s.execute(ctx, types.CommandRecordCustomerReply, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireActive(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.MessageID == "" {
			return nil, command.Reject("message_id is required")
		}
		if current.HasMessage(in.MessageID) {
			return nil, fmt.Errorf("%w: %s", ports.ErrDuplicateMessage, in.MessageID)
		}
		return []eventlog.Payload{eventlog.CaseCustomerReplied{MessageID: in.MessageID, From: in.From}}, nil
	})
	if s.replies == nil {
		return c, err
	}
	if errors.Is(err, ports.ErrDuplicateMessage) {
		if current, lerr := s.load(ctx, in.AggregateID); lerr == nil && current != nil {
			s.notifyReply(ctx, *current, in)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.notifyReply(ctx, *c, in)
	return c, nil
}

func (s *Service) notifyReply(ctx context.Context, c domain.Case, in types.RecordCustomerReplyInput) {
	if err := s.replies.CustomerReplied(ctx, c, in.MessageID, in.From); err != nil {
		s.metrics.Error(ctx, metrics.CategoryWebhook, "reply side effect failed",
			slog.String("case_id", c.ID),
			slog.String("message_id", in.MessageID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) ResolveCase(ctx context.Context, in types.ResolveCaseInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandResolveCase, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireCase(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.Status != domain.StatusOpen {
			return nil, command.Reject("case %s is %s, not open", in.AggregateID, current.Status)
		}
		return []eventlog.Payload{eventlog.CaseResolved{Resolution: in.Resolution}}, nil
	})
}

func (s *Service) ReopenCase(ctx context.Context, in types.ReopenCaseInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandReopenCase, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireCase(current, in.AggregateID); err != nil {
			return nil, err
		}
		if current.Status != domain.StatusResolved {
			return nil, command.Reject("only resolved cases can be reopened, case %s is %s", in.AggregateID, current.Status)
		}
		return []eventlog.Payload{eventlog.CaseReopened{Reason: in.Reason}}, nil
	})
}

func (s *Service) CloseCase(ctx context.Context, in types.CloseCaseInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandCloseCase, in.Meta, func(current *domain.Case, _ time.Time) ([]eventlog.Payload, error) {
		if err := requireActive(current, in.AggregateID); err != nil {
			return nil, err
		}
		return []eventlog.Payload{eventlog.CaseClosed{}}, nil
	})
}

// MarkSLABreached appends a breach only when the deadline has passed at
// the command time and the flag is not already set.
func (s *Service) MarkSLABreached(ctx context.Context, in types.MarkSLABreachedInput) (*domain.Case, error) {
	return s.execute(ctx, types.CommandMarkSLABreached, in.Meta, func(current *domain.Case, at time.Time) ([]eventlog.Payload, error) {
		if err := requireCase(current, in.AggregateID); err != nil {
			return nil, err
		}
		if in.Kind != eventlog.BreachFirstResponse && in.Kind != eventlog.BreachResolution {
			return nil, command.Reject("unknown breach kind %q", in.Kind)
		}
		dueAt, due := current.DueBreaches(at)[in.Kind]
		if !due {
			return nil, command.Reject("case %s has no pending %s breach", in.AggregateID, in.Kind)
		}
		return []eventlog.Payload{eventlog.CaseSLABreached{Kind: in.Kind, DueAt: dueAt}}, nil
	})
}

// Get returns the materialized case.
func (s *Service) Get(ctx context.Context, id string) (*domain.Case, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) execute(ctx context.Context, commandType string, meta command.Meta, decide decideFunc) (c *domain.Case, err error) {
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
			AggregateType:    eventlog.AggregateCase,
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
		next, err := s.reducer.Fold(current, appended)
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

func (s *Service) load(ctx context.Context, id string) (*domain.Case, error) {
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
	state, err := s.reducer.Fold(cached, events)
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", id, err)
	}
	return state, nil
}

func requireCase(current *domain.Case, id string) error {
	if current == nil {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	return nil
}

func requireActive(current *domain.Case, id string) error {
	if err := requireCase(current, id); err != nil {
		return err
	}
	if current.Status == domain.StatusClosed {
		return command.Reject("case %s is closed", id)
	}
	return nil
}
