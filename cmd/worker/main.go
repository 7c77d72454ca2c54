package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/worktrack/internal/app/api"
	platformobservability "github.com/Apurer/worktrack/internal/platform/observability"
	projactivities "github.com/Apurer/worktrack/internal/platform/temporal/activities/projections"
	maintworkflows "github.com/Apurer/worktrack/internal/platform/temporal/workflows/maintenance"
)

func main() {
	ctx := context.Background()
	const serviceName = "worktrack-worker"
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	components, err := api.Build(ctx, cfg, instruments)
	if err != nil {
		logger.Error("failed to build components", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer components.Close()
	if !components.Durable {
		logger.Warn("worker running without postgres, rebuilds only touch this process's memory")
	}

	temporalClient, err := api.DialTemporal(cfg, instruments, "temporal-worker")
	if err != nil {
		logger.Error("failed to create Temporal client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer temporalClient.Close()

	activities := projactivities.NewActivities(components.Runner, components.Maintenance)
	w := worker.New(temporalClient, maintworkflows.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(maintworkflows.RebuildWorkflow, workflow.RegisterOptions{Name: maintworkflows.RebuildWorkflowName})
	w.RegisterWorkflowWithOptions(maintworkflows.MaintenanceWorkflow, workflow.RegisterOptions{Name: maintworkflows.MaintenanceWorkflowName})
	w.RegisterActivityWithOptions(activities.RebuildProjector, activity.RegisterOptions{Name: projactivities.RebuildProjectorActivityName})
	w.RegisterActivityWithOptions(activities.CatchUpProjector, activity.RegisterOptions{Name: projactivities.CatchUpProjectorActivityName})
	w.RegisterActivityWithOptions(activities.RunMaintenance, activity.RegisterOptions{Name: projactivities.RunMaintenanceActivityName})

	logger.Info("worker listening", slog.String("taskQueue", maintworkflows.TaskQueue), slog.String("namespace", cfg.TemporalNamespace))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker exited with error", slog.String("error", err.Error()))
		return
	}
	logger.Info("Temporal worker stopped")
}
