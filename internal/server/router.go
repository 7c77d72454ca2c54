// Package server exposes the command, query, webhook and operator
// endpoints over gin.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	casedomain "github.com/Apurer/worktrack/internal/domains/cases/domain"
	caseports "github.com/Apurer/worktrack/internal/domains/cases/ports"
	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projworkflows "github.com/Apurer/worktrack/internal/domains/projections/adapters/workflows"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
	wiports "github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	apierrors "github.com/Apurer/worktrack/internal/shared/errors"
)

// Projections is the operator surface of the projector runner.
type Projections interface {
	Names() []string
	Snapshot(ctx context.Context) (projapp.Snapshot, error)
	Pause(ctx context.Context, name string) (projports.Checkpoint, error)
	Resume(ctx context.Context, name string) (projports.Checkpoint, error)
}

// Maintenance runs one upkeep pass.
type Maintenance interface {
	Run(ctx context.Context) (maintapp.Result, error)
}

// CalendarWebhook applies calendar change notifications.
type CalendarWebhook interface {
	Handle(ctx context.Context, notifications []webhookapp.CalendarNotification) (webhookapp.CalendarResult, error)
}

// InboundWebhook records inbound customer email.
type InboundWebhook interface {
	Handle(ctx context.Context, msg webhookapp.InboundEmail) (*casedomain.Case, error)
}

// Dependencies are the services the router dispatches to.
type Dependencies struct {
	WorkItems   wiports.Service
	Cases       caseports.Service
	Projections Projections
	Rebuilds    projworkflows.Rebuilder
	Maintenance Maintenance
	Calendar    CalendarWebhook
	Inbound     InboundWebhook
	Metrics     *metrics.Collector
	Logger      *slog.Logger
	// ServiceName enables otelgin tracing when set.
	ServiceName string
}

type api struct {
	deps      Dependencies
	responder *apierrors.Responder
	commands  map[string]commandHandler
	logger    *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &api{
		deps:      deps,
		responder: newResponder(),
		logger:    logger,
	}
	a.commands = a.commandTable()

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.ServiceName != "" {
		router.Use(otelgin.Middleware(deps.ServiceName))
	}

	v1 := router.Group("/v1")
	v1.POST("/commands", a.SubmitCommand)
	v1.GET("/work-items/:id", a.GetWorkItem)
	v1.GET("/queues/:userId/:lens/:queueId", a.GetQueue)
	v1.GET("/cases/:id", a.GetCase)
	v1.GET("/metrics", a.GetMetrics)
	v1.POST("/webhooks/calendar", a.CalendarWebhook)
	v1.POST("/webhooks/inbound-email", a.InboundEmailWebhook)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	ops := router.Group("/internal")
	ops.POST("/sweep", a.Sweep)
	ops.POST("/projectors/:name/rebuild", a.RebuildProjector)
	ops.POST("/projectors/:name/pause", a.PauseProjector)
	ops.POST("/projectors/:name/resume", a.ResumeProjector)

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

// newResponder chains the mappers for every sentinel the handlers surface.
func newResponder() *apierrors.Responder {
	return apierrors.NewResponder("",
		apierrors.CommandMapper,
		apierrors.NotFoundMapper(wiports.ErrNotFound, wiports.ErrQueueNotFound, caseports.ErrNotFound, projports.ErrUnknownProjector),
		apierrors.StatusMapper(projports.ErrNotRebuildable, apierrors.ErrValidation.WithCode("not_rebuildable")),
		apierrors.StatusMapper(webhookapp.ErrDuplicateMessage, apierrors.ErrConflict.WithCode("duplicate_message")),
		apierrors.StatusMapper(wiports.ErrDuplicateNotification, apierrors.ErrConflict.WithCode("duplicate_notification")),
	)
}

func (a *api) fail(c *gin.Context, err error) {
	problem := a.responder.Problem(err)
	if problem.Status >= http.StatusInternalServerError {
		a.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	}
	a.responder.Respond(c, problem)
}
