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

	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
)

const tracerName = "github.com/Apurer/worktrack/internal/domains/cases/adapters/observability/service"

// Service decorates the support case port with tracing, logging, and metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

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
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
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
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

func (s *Service) OpenCase(ctx context.Context, in types.OpenCaseInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandOpenCase, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.OpenCase(ctx, in)
	})
}

func (s *Service) RecordFirstResponse(ctx context.Context, in types.RecordFirstResponseInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandRecordFirstResponse, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.RecordFirstResponse(ctx, in)
	})
}

func (s *Service) ChangeSeverity(ctx context.Context, in types.ChangeSeverityInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandChangeSeverity, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.ChangeSeverity(ctx, in)
	})
}

func (s *Service) RecordCustomerReply(ctx context.Context, in types.RecordCustomerReplyInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandRecordCustomerReply, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.RecordCustomerReply(ctx, in)
	})
}

func (s *Service) ResolveCase(ctx context.Context, in types.ResolveCaseInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandResolveCase, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.ResolveCase(ctx, in)
	})
}

func (s *Service) ReopenCase(ctx context.Context, in types.ReopenCaseInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandReopenCase, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.ReopenCase(ctx, in)
	})
}

func (s *Service) CloseCase(ctx context.Context, in types.CloseCaseInput) (*domain.Case, error) {
	return s.command(ctx, types.CommandCloseCase, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.CloseCase(ctx, in)
	})
}

func (s *Service) MarkSLABreached(ctx context.Context, in types.MarkSLABreachedInput) (*domain.Case, error) {
	c, err := s.command(ctx, types.CommandMarkSLABreached, in.AggregateID, func(ctx context.Context) (*domain.Case, error) {
		return s.inner.MarkSLABreached(ctx, in)
	})
	if err == nil {
		s.metrics.recordBreach(ctx, in.Kind, c.Severity)
	}
	return c, err
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Case, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Get", trace.WithAttributes(attribute.String("case.id", id)))
	defer span.End()

	c, err := s.inner.Get(ctx, id)
	if err != nil {
		s.fail(ctx, span, err, "failed to get case", slog.String("case.id", id))
		return nil, err
	}
	return c, nil
}

func (s *Service) command(ctx context.Context, commandType, aggregateID string, call func(context.Context) (*domain.Case, error)) (*domain.Case, error) {
	ctx, span := s.tracer.Start(ctx, "Service."+commandType, trace.WithAttributes(
		attribute.String("command.type", commandType),
		attribute.String("case.id", aggregateID)))
	defer span.End()

	c, err := call(ctx)
	s.metrics.recordCommand(ctx, commandType, err == nil)
	if err != nil {
		s.fail(ctx, span, err, "case command failed",
			slog.String("command_type", commandType), slog.String("case.id", aggregateID))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("case.sequence", c.LastEventSequence),
		attribute.String("case.status", string(c.Status)),
		attribute.String("case.severity", string(c.Severity)))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "case command handled",
		slog.String("command_type", commandType),
		slog.String("case.id", c.ID),
		slog.Int64("sequence", c.LastEventSequence))
	return c, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

type serviceMetrics struct {
	commands metric.Int64Counter
	breaches metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	commands, _ := m.Int64Counter("cases.service.commands", metric.WithDescription("Support case commands handled"))
	breaches, _ := m.Int64Counter("cases.service.sla_breaches", metric.WithDescription("SLA breaches recorded"))
	return serviceMetrics{commands: commands, breaches: breaches}
}

func (m serviceMetrics) recordCommand(ctx context.Context, commandType string, ok bool) {
	if m.commands == nil {
		return
	}
	m.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command.type", commandType), attribute.Bool("command.ok", ok)))
}

func (m serviceMetrics) recordBreach(ctx context.Context, kind string, severity sla.Severity) {
	if m.breaches == nil {
		return
	}
	m.breaches.Add(ctx, 1, metric.WithAttributes(attribute.String("sla.kind", kind), attribute.String("case.severity", string(severity))))
}

var _ ports.Service = (*Service)(nil)
