package projections

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
)

const (
	// RebuildProjectorActivityName replays the log into a shadow read model and swaps it in.
	RebuildProjectorActivityName = "projections.activities.RebuildProjector"
	// CatchUpProjectorActivityName processes batches until the projector reaches the head of the log.
	CatchUpProjectorActivityName = "projections.activities.CatchUpProjector"
	// RunMaintenanceActivityName runs one sweep, deferred delivery and catch-up pass.
	RunMaintenanceActivityName = "projections.activities.RunMaintenance"

	// ErrTypeNotRebuildable marks failures a retry cannot fix.
	ErrTypeNotRebuildable = "ProjectorNotRebuildable"
)

// Runner is the projector runner surface the activities drive.
type Runner interface {
	Rebuild(ctx context.Context, name string) (projapp.RebuildResult, error)
	CatchUp(ctx context.Context, name string) (projapp.CatchUpResult, error)
}

// Maintenance runs the periodic upkeep pass.
type Maintenance interface {
	Run(ctx context.Context) (maintapp.Result, error)
}

// Activities groups activities that operate on the read models.
type Activities struct {
	runner      Runner
	maintenance Maintenance
}

func NewActivities(runner Runner, maintenance Maintenance) *Activities {
	return &Activities{runner: runner, maintenance: maintenance}
}

// RebuildProjector rebuilds the named projector.
func (a *Activities) RebuildProjector(ctx context.Context, name string) (projapp.RebuildResult, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.runner == nil {
		logger.Error("rebuild activity not initialized", "projector", name)
		return projapp.RebuildResult{}, errors.New("rebuild activity not initialized")
	}
	logger.Info("RebuildProjector activity started", "projector", name)
	result, err := a.runner.Rebuild(ctx, name)
	if err != nil {
		logger.Error("RebuildProjector activity failed", "projector", name, "error", err)
		if errors.Is(err, projports.ErrUnknownProjector) || errors.Is(err, projports.ErrNotRebuildable) {
			return result, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotRebuildable, err)
		}
		return result, err
	}
	logger.Info("RebuildProjector activity completed", "projector", name, "replayed", result.Replayed, "position", result.Position)
	return result, nil
}

// CatchUpProjector picks up events appended while a rebuild ran.
func (a *Activities) CatchUpProjector(ctx context.Context, name string) (projapp.CatchUpResult, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.runner == nil {
		return projapp.CatchUpResult{}, errors.New("catch-up activity not initialized")
	}
	result, err := a.runner.CatchUp(ctx, name)
	if err != nil {
		logger.Error("CatchUpProjector activity failed", "projector", name, "error", err)
		return result, err
	}
	logger.Info("CatchUpProjector activity completed", "projector", name, "processed", result.Processed)
	return result, nil
}

// RunMaintenance runs one upkeep pass. A pass skipped because another one
// was running is reported as success.
func (a *Activities) RunMaintenance(ctx context.Context) (maintapp.Result, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.maintenance == nil {
		return maintapp.Result{}, errors.New("maintenance activity not initialized")
	}
	result, err := a.maintenance.Run(ctx)
	if err != nil {
		logger.Error("RunMaintenance activity failed", "error", err)
		return result, err
	}
	logger.Info("RunMaintenance activity completed", "skipped", result.Skipped, "breaches", len(result.Sweep.Breaches))
	return result, nil
}
