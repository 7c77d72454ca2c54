package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	projworkflows "github.com/Apurer/worktrack/internal/domains/projections/adapters/workflows"
	platformobservability "github.com/Apurer/worktrack/internal/platform/observability"
	"github.com/Apurer/worktrack/internal/platform/scheduler"
	"github.com/Apurer/worktrack/internal/server"
)

const serviceName = "worktrack-api"

// Run boots the worktrack HTTP API with observability, stores, projector
// runner, scheduled sweep and rebuild workflows wired. It returns when ctx
// is cancelled or the server fails.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	components, err := Build(ctx, cfg, instruments)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(ctx)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		components.Runner.Watch(ctx, components.Wake.Wake(), cfg.ProjectorPoll)
	}()
	defer func() { <-watchDone }()
	defer cancel()

	if cfg.SweepEnabled() {
		sweep, err := scheduler.New("maintenance", cfg.SweepSchedule, cfg.SweepTimeout, func(ctx context.Context) error {
			_, err := components.Maintenance.Run(ctx)
			return err
		}, logger)
		if err != nil {
			return err
		}
		sweep.Start()
		defer sweep.Stop()
		logger.Info("maintenance scheduled", slog.String("schedule", cfg.SweepSchedule))
	}

	var rebuilds projworkflows.Rebuilder = projworkflows.NewInlineRebuilds(components.Runner)
	switch temporalClient, err := DialTemporal(cfg, instruments, "temporal-client"); {
	case err != nil:
		logger.Warn("Temporal workflows unavailable, running rebuilds inline", slog.String("error", err.Error()))
	case !components.Durable:
		// A worker cannot see this process's in-memory stores.
		temporalClient.Close()
		logger.Warn("Temporal rebuilds need shared postgres stores, running rebuilds inline")
	default:
		defer temporalClient.Close()
		rebuilds = projworkflows.NewTemporalRebuilds(temporalClient)
		logger.Info("Temporal workflows enabled", slog.String("namespace", cfg.TemporalNamespace))
	}

	router := server.NewRouter(server.Dependencies{
		WorkItems:   components.WorkItems,
		Cases:       components.Cases,
		Projections: components.Runner,
		Rebuilds:    rebuilds,
		Maintenance: components.Maintenance,
		Calendar:    components.Calendar,
		Inbound:     components.Inbound,
		Metrics:     components.Metrics,
		Logger:      logger,
		ServiceName: serviceName,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("worktrack API listening", slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worktrack API server exited", slog.String("addr", srv.Addr), slog.String("error", err.Error()))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("worktrack API stopped")
	return nil
}
