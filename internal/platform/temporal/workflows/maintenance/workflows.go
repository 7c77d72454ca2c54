package maintenance

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projactivities "github.com/Apurer/worktrack/internal/platform/temporal/activities/projections"
	"github.com/Apurer/worktrack/internal/platform/temporal/sequences"
)

const (
	// TaskQueue is consumed by the worker processing read model workflows.
	TaskQueue = "WORKTRACK_MAINTENANCE"
	// RebuildWorkflowName is the public identifier for registering the rebuild workflow.
	RebuildWorkflowName = "projections.workflows.Rebuild"
	// MaintenanceWorkflowName is the public identifier for the upkeep workflow.
	MaintenanceWorkflowName = "maintenance.workflows.Run"
)

// RebuildWorkflowInput names the projector to rebuild.
type RebuildWorkflowInput struct {
	Projector string
	TraceID   string
}

// RebuildWorkflow rebuilds one projector durably. Only one run per
// projector exists at a time; the workflow id is derived from the name.
func RebuildWorkflow(ctx workflow.Context, input RebuildWorkflowInput) (*projapp.RebuildResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RebuildWorkflow started", withTraceID(input.TraceID, "projector", input.Projector)...)
	result, err := sequences.RunRebuildSequence(ctx, input.Projector)
	if err != nil {
		logger.Error("RebuildWorkflow failed", withTraceID(input.TraceID, "projector", input.Projector, "error", err)...)
		return nil, err
	}
	logger.Info("RebuildWorkflow completed", withTraceID(input.TraceID, "projector", input.Projector, "replayed", result.Replayed)...)
	return result, nil
}

// MaintenanceWorkflow runs one upkeep pass, typically from a Temporal schedule.
func MaintenanceWorkflow(ctx workflow.Context) (*maintapp.Result, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	var result maintapp.Result
	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, options), projactivities.RunMaintenanceActivityName).Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("MaintenanceWorkflow failed", "error", err)
		return nil, err
	}
	return &result, nil
}

func withTraceID(traceID string, keyvals ...interface{}) []interface{} {
	if traceID == "" {
		return keyvals
	}
	return append(keyvals, "traceId", traceID)
}
