package sequences

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projactivities "github.com/Apurer/worktrack/internal/platform/temporal/activities/projections"
)

// RunRebuildSequence rebuilds a projector and then catches it up with
// events appended during the replay.
func RunRebuildSequence(ctx workflow.Context, name string) (*projapp.RebuildResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("rebuild sequence started", "projector", name)
	rebuildOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	catchUpOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}

	var rebuilt projapp.RebuildResult
	err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, rebuildOptions), projactivities.RebuildProjectorActivityName, name).Get(ctx, &rebuilt)
	if err != nil {
		logger.Error("rebuild sequence failed", "projector", name, "error", err)
		return nil, err
	}
	var caughtUp projapp.CatchUpResult
	err = workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, catchUpOptions), projactivities.CatchUpProjectorActivityName, name).Get(ctx, &caughtUp)
	if err != nil {
		logger.Error("rebuild sequence catch-up failed", "projector", name, "error", err)
		return nil, err
	}
	if caughtUp.Position > rebuilt.Position {
		rebuilt.Position = caughtUp.Position
	}
	logger.Info("rebuild sequence completed", "projector", name, "position", rebuilt.Position)
	return &rebuilt, nil
}
