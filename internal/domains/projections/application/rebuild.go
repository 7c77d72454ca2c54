package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
)

// RebuildResult summarizes a completed rebuild.
type RebuildResult struct {
	Projector string `json:"projector"`
	Replayed  int    `json:"replayed"`
	Applied   int    `json:"applied"`
	Position  int64  `json:"position"`
}

// Rebuild replays the whole log into a shadow read model and swaps it in.
// Readers keep seeing the previous model until the swap. When ctx is
// cancelled between batches the shadow is discarded and nothing changes.
// The checkpoint is reset under a new generation, so a live batch in
// another process that loaded the old one cannot overwrite it. A paused
// projector stays paused.
func (r *Runner) Rebuild(ctx context.Context, name string) (RebuildResult, error) {
	p, lock, err := r.lookup(name)
	if err != nil {
		return RebuildResult{Projector: name}, err
	}
	rebuildable, ok := p.(ports.Rebuildable)
	if !ok {
		return RebuildResult{Projector: name}, fmt.Errorf("%w: %s", ports.ErrNotRebuildable, name)
	}

	lock.Lock()
	defer lock.Unlock()

	result := RebuildResult{Projector: name}
	r.metrics.Info(ctx, metrics.CategoryRebuild, "rebuild started", slog.String("projector", name))

	shadow, err := rebuildable.Shadow(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: open shadow for %s: %w", ports.ErrProjectorFailure, name, err)
	}
	abort := func(cause error) (RebuildResult, error) {
		if discardErr := shadow.Discard(context.WithoutCancel(ctx)); discardErr != nil {
			cause = errors.Join(cause, fmt.Errorf("discard shadow: %w", discardErr))
		}
		r.metrics.Error(ctx, metrics.CategoryRebuild, "rebuild aborted",
			slog.String("projector", name), slog.String("error", cause.Error()))
		return result, cause
	}

	var position int64
	for {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		batch, err := r.events.ReadGlobalStream(ctx, position, r.batchSize)
		if err != nil {
			return abort(fmt.Errorf("%w: read log for %s: %w", ports.ErrProjectorFailure, name, err))
		}
		if len(batch) == 0 {
			break
		}
		for _, evt := range batch {
			applied, err := shadow.Project(ctx, evt)
			if err != nil {
				return abort(fmt.Errorf("%w: %s at global sequence %d: %w", ports.ErrProjectorFailure, name, evt.GlobalSequence, err))
			}
			if applied {
				result.Applied++
			}
		}
		result.Replayed += len(batch)
		position = batch[len(batch)-1].GlobalSequence
	}

	if err := shadow.Promote(ctx); err != nil {
		return abort(fmt.Errorf("%w: promote shadow for %s: %w", ports.ErrProjectorFailure, name, err))
	}

	at := r.now().UTC()
	cp := ports.NewCheckpoint(name)
	cp.LastProcessedGlobalSequence = position
	cp.EventsProcessedCount = int64(result.Replayed)
	cp.LastProcessedAt = &at
	if err := r.checkpoints.Reset(context.WithoutCancel(ctx), cp); err != nil {
		return result, fmt.Errorf("%w: reset checkpoint %s: %w", ports.ErrProjectorFailure, name, err)
	}
	result.Position = position
	r.metrics.Info(ctx, metrics.CategoryRebuild, "rebuild completed",
		slog.String("projector", name),
		slog.Int("replayed", result.Replayed),
		slog.Int64("position", position))
	return result, nil
}
