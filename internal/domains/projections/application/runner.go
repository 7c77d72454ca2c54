package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	"github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

// DefaultBatchSize is the number of events read per batch.
const DefaultBatchSize = 200

// Runner drives a fixed set of projectors over the global event stream.
// Runs of the same projector are serialized in process. Across processes
// the per-row sequence guard makes overlapping batches harmless, and the
// checkpoint generation keeps a batch that straddled a rebuild from
// advancing past events the promoted model never saw.
type Runner struct {
	events      eventports.EventStore
	checkpoints ports.CheckpointStore
	projectors  map[string]ports.Projector
	order       []string
	locks       map[string]*sync.Mutex
	batchSize   int
	metrics     *metrics.Collector
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures the runner.
type Option func(*Runner)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMetrics records outcomes on the collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for LastProcessedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires the runner. Projectors run in the order given.
func NewRunner(events eventports.EventStore, checkpoints ports.CheckpointStore, projectors []ports.Projector, opts ...Option) *Runner {
	r := &Runner{
		events:      events,
		checkpoints: checkpoints,
		projectors:  make(map[string]ports.Projector, len(projectors)),
		locks:       make(map[string]*sync.Mutex, len(projectors)),
		batchSize:   DefaultBatchSize,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(metrics.WithLogger(r.logger))
	}
	for _, p := range projectors {
		r.projectors[p.Name()] = p
		r.locks[p.Name()] = &sync.Mutex{}
		r.order = append(r.order, p.Name())
	}
	return r
}

// Names lists the registered projectors in run order.
func (r *Runner) Names() []string {
	return append([]string(nil), r.order...)
}

// BatchResult summarizes one batch.
type BatchResult struct {
	Projector    string `json:"projector"`
	Processed    int    `json:"processed"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	FromSequence int64  `json:"fromSequence"`
	ToSequence   int64  `json:"toSequence"`
	Paused       bool   `json:"paused,omitempty"`
}

// CatchUpResult summarizes a catch-up loop.
type CatchUpResult struct {
	Projector string `json:"projector"`
	Batches   int    `json:"batches"`
	Processed int    `json:"processed"`
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
	Position  int64  `json:"position"`
	Paused    bool   `json:"paused,omitempty"`
}

// RunOnce processes a single batch for the named projector.
func (r *Runner) RunOnce(ctx context.Context, name string) (BatchResult, error) {
	p, lock, err := r.lookup(name)
	if err != nil {
		return BatchResult{Projector: name}, err
	}
	lock.Lock()
	defer lock.Unlock()
	return r.runBatch(ctx, p)
}

// CatchUp runs batches until the projector reaches the head of the log.
// Cancellation is honoured between batches. A batch fenced off by a rebuild
// is retried from the rebuilt checkpoint.
func (r *Runner) CatchUp(ctx context.Context, name string) (CatchUpResult, error) {
	result := CatchUpResult{Projector: name}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := r.RunOnce(ctx, name)
		if batch.Processed > 0 {
			result.Batches++
			result.Processed += batch.Processed
			result.Applied += batch.Applied
			result.Skipped += batch.Skipped
			result.Position = batch.ToSequence
		}
		if errors.Is(err, ports.ErrCheckpointMoved) {
			continue
		}
		if err != nil {
			return result, err
		}
		if batch.Paused {
			result.Paused = true
			return result, nil
		}
		if batch.Processed == 0 {
			if result.Position == 0 {
				result.Position = batch.FromSequence
			}
			return result, nil
		}
	}
}

// CatchUpAll catches up every projector. A failing projector does not stop
// the others; all failures are joined.
func (r *Runner) CatchUpAll(ctx context.Context) ([]CatchUpResult, error) {
	results := make([]CatchUpResult, 0, len(r.order))
	var errs []error
	for _, name := range r.order {
		res, err := r.CatchUp(ctx, name)
		results = append(results, res)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Pause stops a projector from consuming until Resume.
func (r *Runner) Pause(ctx context.Context, name string) (ports.Checkpoint, error) {
	return r.setStatus(ctx, name, ports.StatusPaused)
}

// Resume reactivates a paused or failed projector.
func (r *Runner) Resume(ctx context.Context, name string) (ports.Checkpoint, error) {
	return r.setStatus(ctx, name, ports.StatusActive)
}

func (r *Runner) setStatus(ctx context.Context, name string, status ports.Status) (ports.Checkpoint, error) {
	_, lock, err := r.lookup(name)
	if err != nil {
		return ports.Checkpoint{}, err
	}
	lock.Lock()
	defer lock.Unlock()
	cp, err := r.loadCheckpoint(ctx, name)
	if err != nil {
		return ports.Checkpoint{}, err
	}
	cp.Status = status
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		return ports.Checkpoint{}, err
	}
	r.metrics.Info(ctx, metrics.CategoryProjector, "projector status changed",
		slog.String("projector", name), slog.String("status", string(status)))
	return cp, nil
}

func (r *Runner) runBatch(ctx context.Context, p ports.Projector) (BatchResult, error) {
	name := p.Name()
	cp, err := r.loadCheckpoint(ctx, name)
	if err != nil {
		return BatchResult{Projector: name}, err
	}
	result := BatchResult{Projector: name, FromSequence: cp.LastProcessedGlobalSequence, ToSequence: cp.LastProcessedGlobalSequence}
	if cp.Status == ports.StatusPaused {
		result.Paused = true
		return result, nil
	}

	batch, err := r.events.ReadGlobalStream(ctx, cp.LastProcessedGlobalSequence, r.batchSize)
	if err != nil {
		return result, r.fail(ctx, cp, cp.LastProcessedGlobalSequence+1, err)
	}
	if len(batch) == 0 {
		return result, nil
	}

	for _, evt := range batch {
		applied, err := p.Project(ctx, evt)
		if err != nil {
			r.metrics.RecordProcessed(name, string(evt.Type), string(projection.OutcomeFailed))
			return result, r.fail(ctx, cp, evt.GlobalSequence, err)
		}
		if applied {
			result.Applied++
		} else {
			result.Skipped++
		}
	}

	last := batch[len(batch)-1].GlobalSequence
	at := r.now().UTC()
	cp.LastProcessedGlobalSequence = last
	cp.EventsProcessedCount += int64(len(batch))
	cp.Status = ports.StatusActive
	cp.LastProcessedAt = &at
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		if errors.Is(err, ports.ErrCheckpointMoved) {
			r.metrics.Warn(ctx, metrics.CategoryProjector, "batch fenced by rebuild",
				slog.String("projector", name),
				slog.Int64("position", last))
			return result, err
		}
		return result, fmt.Errorf("%w: save checkpoint %s: %w", ports.ErrProjectorFailure, name, err)
	}
	result.Processed = len(batch)
	result.ToSequence = last
	r.metrics.Info(ctx, metrics.CategoryProjector, "batch processed",
		slog.String("projector", name),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", result.Skipped),
		slog.Int64("position", last))
	return result, nil
}

func (r *Runner) fail(ctx context.Context, cp ports.Checkpoint, globalSequence int64, cause error) error {
	err := fmt.Errorf("%w: %s at global sequence %d: %w", ports.ErrProjectorFailure, cp.ProjectorName, globalSequence, cause)
	cp.ErrorsCount++
	cp.LastError = err.Error()
	cp.Status = ports.StatusError
	if saveErr := r.checkpoints.Save(ctx, cp); saveErr != nil {
		err = errors.Join(err, fmt.Errorf("record failure: %w", saveErr))
	}
	r.metrics.Error(ctx, metrics.CategoryProjector, "batch failed",
		slog.String("projector", cp.ProjectorName),
		slog.Int64("global_sequence", globalSequence),
		slog.String("error", cause.Error()))
	return err
}

func (r *Runner) lookup(name string) (ports.Projector, *sync.Mutex, error) {
	p, ok := r.projectors[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ports.ErrUnknownProjector, name)
	}
	return p, r.locks[name], nil
}

func (r *Runner) loadCheckpoint(ctx context.Context, name string) (ports.Checkpoint, error) {
	cp, err := r.checkpoints.Load(ctx, name)
	if err != nil {
		return ports.Checkpoint{}, err
	}
	if cp == nil {
		return ports.NewCheckpoint(name), nil
	}
	return *cp, nil
}

// Watch catches up all projectors whenever wake fires and on every tick of
// interval, until ctx is done.
func (r *Runner) Watch(ctx context.Context, wake <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.CatchUpAll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("projector catch-up failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}
