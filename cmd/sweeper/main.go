package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/Apurer/worktrack/internal/app/api"
	platformobservability "github.com/Apurer/worktrack/internal/platform/observability"
)

// sweeper runs one maintenance pass and exits. Schedule it from an external
// cron with SWEEP_SCHEDULE=off on the api processes.
func main() {
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepTimeout)
	defer cancel()

	instruments, shutdown, err := platformobservability.Init(ctx, "worktrack-sweeper")
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = shutdown(shutdownCtx)
	}()
	logger := instruments.Logger

	components, err := api.Build(ctx, cfg, instruments)
	if err != nil {
		log.Fatalf("failed to build components: %v", err)
	}
	defer components.Close()
	if !components.Durable {
		logger.Warn("POSTGRES_DSN not set or unreachable, sweeping an empty in-memory log")
	}

	result, err := components.Maintenance.Run(ctx)
	if err != nil {
		logger.Error("maintenance pass failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("maintenance pass completed",
		slog.Bool("skipped", result.Skipped),
		slog.Int("cases_checked", result.Sweep.Checked),
		slog.Int("breaches", len(result.Sweep.Breaches)),
	)
}
