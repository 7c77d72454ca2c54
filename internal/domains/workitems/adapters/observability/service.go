package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
)

const tracerName = "github.com/Apurer/worktrack/internal/domains/workitems/adapters/observability/service"

// Service decorates the work item port with tracing, logging, and metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core service.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

func (s *Service) CreateWorkItem(ctx context.Context, in types.CreateWorkItemInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandCreateWorkItem, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.CreateWorkItem(ctx, in)
	})
}

func (s *Service) UpdatePriority(ctx context.Context, in types.UpdatePriorityInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandUpdatePriority, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.UpdatePriority(ctx, in)
	})
}

func (s *Service) AdjustPriority(ctx context.Context, in types.AdjustPriorityInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandAdjustPriority, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.AdjustPriority(ctx, in)
	})
}

func (s *Service) AttachSignal(ctx context.Context, in types.AttachSignalInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandAttachSignal, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.AttachSignal(ctx, in)
	})
}

func (s *Service) AssignWorkItem(ctx context.Context, in types.AssignWorkItemInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandAssignWorkItem, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.AssignWorkItem(ctx, in)
	})
}

func (s *Service) SnoozeWorkItem(ctx context.Context, in types.SnoozeWorkItemInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandSnoozeWorkItem, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.SnoozeWorkItem(ctx, in)
	})
}

func (s *Service) ResolveWorkItem(ctx context.Context, in types.ResolveWorkItemInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandResolveWorkItem, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.ResolveWorkItem(ctx, in)
	})
}

func (s *Service) ReopenWorkItem(ctx context.Context, in types.ReopenWorkItemInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandReopenWorkItem, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		return s.inner.ReopenWorkItem(ctx, in)
	})
}

// ApplyMeetingTrigger also tags the span with the trigger, since it may
// resolve or reopen the item as a side effect.
func (s *Service) ApplyMeetingTrigger(ctx context.Context, in types.ApplyMeetingTriggerInput) (*domain.WorkItem, error) {
	return s.command(ctx, types.CommandApplyMeetingTrigger, in.AggregateID, func(ctx context.Context) (*domain.WorkItem, error) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("work_item.trigger", in.Trigger))
		return s.inner.ApplyMeetingTrigger(ctx, in)
	})
}

// Get reads the detail projection.
func (s *Service) Get(ctx context.Context, id string) (*domain.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "Service.Get", attribute.String("work_item.id", id))
	defer span.End()

	item, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to get work item", slog.String("work_item.id", id))
	}
	return item, nil
}

// GetQueue reads the queue projection.
func (s *Service) GetQueue(ctx context.Context, key domain.QueueKey) (*domain.QueueSummary, error) {
	ctx, span := s.startSpan(ctx, "Service.GetQueue",
		attribute.String("queue.user_id", key.UserID),
		attribute.String("queue.lens", key.Lens),
		attribute.String("queue.id", key.QueueID))
	defer span.End()

	summary, err := s.inner.GetQueue(ctx, key)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to get queue", slog.String("queue.id", key.QueueID))
	}
	span.SetAttributes(attribute.Int("queue.open_count", summary.OpenCount))
	return summary, nil
}

func (s *Service) command(ctx context.Context, commandType, aggregateID string, call func(context.Context) (*domain.WorkItem, error)) (*domain.WorkItem, error) {
	ctx, span := s.startSpan(ctx, "Service."+commandType,
		attribute.String("command.type", commandType),
		attribute.String("work_item.id", aggregateID))
	defer span.End()

	s.logInfo(ctx, "handling work item command", slog.String("command_type", commandType), slog.String("work_item.id", aggregateID))
	item, err := call(ctx)
	if err != nil {
		s.metrics.recordCommand(ctx, commandType, false)
		return nil, s.handleError(ctx, span, err, "work item command failed",
			slog.String("command_type", commandType), slog.String("work_item.id", aggregateID))
	}
	s.metrics.recordCommand(ctx, commandType, true)
	span.SetAttributes(
		attribute.Int64("work_item.sequence", item.LastEventSequence),
		attribute.String("work_item.status", string(item.Status)),
		attribute.Int("work_item.score", item.Score))
	if item.Status == domain.StatusResolved {
		s.metrics.recordResolved(ctx, commandType)
	}
	s.logInfo(ctx, "work item command handled",
		slog.String("command_type", commandType),
		slog.String("work_item.id", item.ID),
		slog.Int64("sequence", item.LastEventSequence))
	return item, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.logError(ctx, msg, err, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	commands metric.Int64Counter
	resolved metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	commands, _ := m.Int64Counter("workitems.service.commands", metric.WithDescription("Work item commands handled"))
	resolved, _ := m.Int64Counter("workitems.service.resolved", metric.WithDescription("Commands that left a work item resolved"))
	return serviceMetrics{commands: commands, resolved: resolved}
}

func (m serviceMetrics) recordCommand(ctx context.Context, commandType string, ok bool) {
	addCounter(ctx, m.commands, 1, attribute.String("command.type", commandType), attribute.Bool("command.ok", ok))
}

func (m serviceMetrics) recordResolved(ctx context.Context, commandType string) {
	addCounter(ctx, m.resolved, 1, attribute.String("command.type", commandType))
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
