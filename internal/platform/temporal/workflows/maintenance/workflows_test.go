package maintenance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
	projactivities "github.com/Apurer/worktrack/internal/platform/temporal/activities/projections"
)

func newEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts := projactivities.NewActivities(nil, nil)
	env.RegisterActivityWithOptions(acts.RebuildProjector, activity.RegisterOptions{Name: projactivities.RebuildProjectorActivityName})
	env.RegisterActivityWithOptions(acts.CatchUpProjector, activity.RegisterOptions{Name: projactivities.CatchUpProjectorActivityName})
	env.RegisterActivityWithOptions(acts.RunMaintenance, activity.RegisterOptions{Name: projactivities.RunMaintenanceActivityName})
	return env
}

func TestRebuildWorkflow_CatchesUpAfterReplay(t *testing.T) {
	env := newEnv(t)
	env.OnActivity(projactivities.RebuildProjectorActivityName, mock.Anything, "work_items").
		Return(projapp.RebuildResult{Projector: "work_items", Replayed: 10, Applied: 10, Position: 10}, nil)
	env.OnActivity(projactivities.CatchUpProjectorActivityName, mock.Anything, "work_items").
		Return(projapp.CatchUpResult{Projector: "work_items", Processed: 2, Position: 12}, nil)

	env.ExecuteWorkflow(RebuildWorkflow, RebuildWorkflowInput{Projector: "work_items"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result projapp.RebuildResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 10, result.Replayed)
	assert.Equal(t, int64(12), result.Position)
}

func TestRebuildWorkflow_FailsWhenRebuildFails(t *testing.T) {
	env := newEnv(t)
	env.OnActivity(projactivities.RebuildProjectorActivityName, mock.Anything, "work_items").
		Return(projapp.RebuildResult{}, errors.New("log unavailable"))

	env.ExecuteWorkflow(RebuildWorkflow, RebuildWorkflowInput{Projector: "work_items"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestMaintenanceWorkflow_ReturnsPassResult(t *testing.T) {
	env := newEnv(t)
	env.OnActivity(projactivities.RunMaintenanceActivityName, mock.Anything).
		Return(maintapp.Result{Deferred: webhookapp.DeferredResult{Sent: 1}}, nil)

	env.ExecuteWorkflow(MaintenanceWorkflow)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result maintapp.Result
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Deferred.Sent)
}
