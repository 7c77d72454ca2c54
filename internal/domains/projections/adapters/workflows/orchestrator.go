package workflows

import (
	"context"
	"errors"
	"fmt"

	oteltrace "go.opentelemetry.io/otel/trace"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	maintworkflows "github.com/Apurer/worktrack/internal/platform/temporal/workflows/maintenance"
)

// Rebuilder rebuilds a projector and catches it up.
type Rebuilder interface {
	Rebuild(ctx context.Context, name string) (projapp.RebuildResult, error)
}

var (
	_ Rebuilder = (*TemporalRebuilds)(nil)
	_ Rebuilder = (*InlineRebuilds)(nil)
)

// TemporalRebuilds starts rebuild workflows on a Temporal cluster.
type TemporalRebuilds struct {
	client    client.Client
	taskQueue string
}

func NewTemporalRebuilds(c client.Client) *TemporalRebuilds {
	return &TemporalRebuilds{client: c, taskQueue: maintworkflows.TaskQueue}
}

// Rebuild starts the workflow, or joins the run already in progress for
// the same projector, and waits for its result.
func (o *TemporalRebuilds) Rebuild(ctx context.Context, name string) (projapp.RebuildResult, error) {
	if o == nil || o.client == nil {
		return projapp.RebuildResult{}, errors.New("temporal rebuild workflows not configured")
	}
	workflowID := rebuildWorkflowID(name)
	options := client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                o.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := o.client.ExecuteWorkflow(ctx, options, maintworkflows.RebuildWorkflow,
		maintworkflows.RebuildWorkflowInput{Projector: name, TraceID: traceID(ctx)})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &alreadyStarted) {
			return projapp.RebuildResult{}, err
		}
		run = o.client.GetWorkflow(ctx, workflowID, alreadyStarted.RunId)
	}
	var result projapp.RebuildResult
	if err := run.Get(ctx, &result); err != nil {
		return projapp.RebuildResult{}, err
	}
	return result, nil
}

// InlineRebuilds runs the rebuild in process, for tests and when Temporal
// is not configured.
type InlineRebuilds struct {
	runner *projapp.Runner
}

func NewInlineRebuilds(runner *projapp.Runner) *InlineRebuilds {
	return &InlineRebuilds{runner: runner}
}

func (o *InlineRebuilds) Rebuild(ctx context.Context, name string) (projapp.RebuildResult, error) {
	if o == nil || o.runner == nil {
		return projapp.RebuildResult{}, errors.New("inline rebuilds not configured")
	}
	result, err := o.runner.Rebuild(ctx, name)
	if err != nil {
		return result, err
	}
	caughtUp, err := o.runner.CatchUp(ctx, name)
	if err != nil {
		return result, err
	}
	if caughtUp.Position > result.Position {
		result.Position = caughtUp.Position
	}
	return result, nil
}

func rebuildWorkflowID(name string) string {
	return fmt.Sprintf("projector-rebuild-%s", name)
}

func traceID(ctx context.Context) string {
	spanCtx := oteltrace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}
