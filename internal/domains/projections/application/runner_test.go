package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventmemory "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/memory"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	"github.com/Apurer/worktrack/internal/domains/projections/adapters/memory"
	"github.com/Apurer/worktrack/internal/domains/projections/ports"
)

type row struct {
	last  int64
	total int
}

// sumProjector totals adjustment deltas per aggregate.
type sumProjector struct {
	name   string
	mu     sync.Mutex
	rows   map[string]row
	failOn map[int64]error
	parent *sumProjector
}

func newSumProjector(name string) *sumProjector {
	return &sumProjector{name: name, rows: map[string]row{}, failOn: map[int64]error{}}
}

func (p *sumProjector) Name() string { return p.name }

func (p *sumProjector) Project(_ context.Context, evt eventlog.Event) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failOn[evt.GlobalSequence]; ok {
		return false, err
	}
	current := p.rows[evt.AggregateID]
	if evt.AggregateSequence <= current.last {
		return false, nil
	}
	if adj, ok := evt.Data.(eventlog.WorkItemPriorityAdjusted); ok {
		current.total += adj.Delta
	}
	current.last = evt.AggregateSequence
	p.rows[evt.AggregateID] = current
	return true, nil
}

func (p *sumProjector) snapshot() map[string]row {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]row, len(p.rows))
	for k, v := range p.rows {
		out[k] = v
	}
	return out
}

func (p *sumProjector) Shadow(context.Context) (ports.Shadow, error) {
	shadow := newSumProjector(p.name)
	shadow.parent = p
	return shadow, nil
}

func (p *sumProjector) Promote(context.Context) error {
	rows := p.snapshot()
	p.parent.mu.Lock()
	p.parent.rows = rows
	p.parent.mu.Unlock()
	return nil
}

func (p *sumProjector) Discard(context.Context) error { return nil }

func seedEvents(t *testing.T, store *eventmemory.Store, perAggregate int, ids ...string) {
	t.Helper()
	for i := 0; i < perAggregate; i++ {
		for _, id := range ids {
			_, err := store.Append(context.Background(), eventports.AppendInput{
				AggregateType: eventlog.AggregateWorkItem,
				AggregateID:   id,
				Actor:         eventlog.SystemActor("test"),
				Payloads:      []eventlog.Payload{eventlog.WorkItemPriorityAdjusted{Delta: i + 1}},
			})
			require.NoError(t, err)
		}
	}
}

func newRunner(store *eventmemory.Store, cps ports.CheckpointStore, batch int, projectors ...ports.Projector) *Runner {
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return NewRunner(store, cps, projectors, WithBatchSize(batch), WithClock(func() time.Time { return fixed }))
}

func TestRunner_RunOnceAdvancesAfterBatch(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 3, "a", "b")
	cps := memory.NewCheckpointStore()
	p := newSumProjector("sums")
	r := newRunner(store, cps, 4, p)
	ctx := context.Background()

	res, err := r.RunOnce(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, int64(4), res.ToSequence)

	cp, err := cps.Load(ctx, "sums")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(4), cp.LastProcessedGlobalSequence)
	assert.Equal(t, int64(4), cp.EventsProcessedCount)
	assert.Equal(t, ports.StatusActive, cp.Status)
	require.NotNil(t, cp.LastProcessedAt)

	catch, err := r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 2, catch.Processed)
	assert.Equal(t, int64(6), catch.Position)
	assert.Equal(t, map[string]row{"a": {last: 3, total: 6}, "b": {last: 3, total: 6}}, p.snapshot())

	idle, err := r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 0, idle.Processed)
	assert.Equal(t, int64(6), idle.Position)
}

func TestRunner_FailureRecordsAndDoesNotAdvance(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 2, "a", "b")
	cps := memory.NewCheckpointStore()
	p := newSumProjector("sums")
	p.failOn[3] = errors.New("disk full")
	r := newRunner(store, cps, 10, p)
	ctx := context.Background()

	_, err := r.RunOnce(ctx, "sums")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrProjectorFailure)

	cp, err := cps.Load(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.LastProcessedGlobalSequence)
	assert.Equal(t, int64(1), cp.ErrorsCount)
	assert.Equal(t, ports.StatusError, cp.Status)
	assert.Contains(t, cp.LastError, "disk full")

	delete(p.failOn, 3)
	res, err := r.RunOnce(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 2, res.Skipped)

	cp, err = cps.Load(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cp.LastProcessedGlobalSequence)
	assert.Equal(t, ports.StatusActive, cp.Status)
	assert.Equal(t, map[string]row{"a": {last: 2, total: 3}, "b": {last: 2, total: 3}}, p.snapshot())
}

func TestRunner_CatchUpAllIsolatesProjectors(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 2, "a")
	cps := memory.NewCheckpointStore()
	broken := newSumProjector("broken")
	broken.failOn[1] = errors.New("bad reducer")
	healthy := newSumProjector("healthy")
	r := newRunner(store, cps, 10, broken, healthy)

	results, err := r.CatchUpAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrProjectorFailure)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[1].Processed)
	assert.Equal(t, row{last: 2, total: 3}, healthy.snapshot()["a"])
}

func TestRunner_PauseAndResume(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 1, "a")
	r := newRunner(store, memory.NewCheckpointStore(), 10, newSumProjector("sums"))
	ctx := context.Background()

	cp, err := r.Pause(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, ports.StatusPaused, cp.Status)

	res, err := r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, 0, res.Processed)

	_, err = r.Resume(ctx, "sums")
	require.NoError(t, err)
	res, err = r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	_, err = r.Pause(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrUnknownProjector)
}

func TestRunner_RebuildMatchesIncremental(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 5, "a", "b", "c")
	cps := memory.NewCheckpointStore()
	p := newSumProjector("sums")
	r := newRunner(store, cps, 4, p)
	ctx := context.Background()

	_, err := r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	incremental := p.snapshot()

	// corrupt the live model, then rebuild from the log
	p.mu.Lock()
	p.rows["a"] = row{last: 5, total: -1}
	p.mu.Unlock()

	res, err := r.Rebuild(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, 15, res.Replayed)
	assert.Equal(t, int64(15), res.Position)
	assert.Equal(t, incremental, p.snapshot())

	cp, err := cps.Load(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(15), cp.LastProcessedGlobalSequence)
	assert.Equal(t, int64(0), cp.ErrorsCount)
}

func TestRunner_RebuildCancelledKeepsLiveModel(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 2, "a")
	p := newSumProjector("sums")
	r := newRunner(store, memory.NewCheckpointStore(), 10, p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Rebuild(ctx, "sums")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.snapshot())
}

type plainProjector struct{}

func (plainProjector) Name() string { return "plain" }
func (plainProjector) Project(context.Context, eventlog.Event) (bool, error) {
	return true, nil
}

func TestRunner_RebuildRequiresShadowSupport(t *testing.T) {
	r := newRunner(eventmemory.NewStore(), memory.NewCheckpointStore(), 10, plainProjector{})
	_, err := r.Rebuild(context.Background(), "plain")
	assert.ErrorIs(t, err, ports.ErrNotRebuildable)
}

func TestRunner_SnapshotReportsLag(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 3, "a")
	r := newRunner(store, memory.NewCheckpointStore(), 2, newSumProjector("sums"))
	ctx := context.Background()

	_, err := r.RunOnce(ctx, "sums")
	require.NoError(t, err)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.LatestEventSequence)
	require.Len(t, snap.Projectors, 1)
	assert.Equal(t, "sums", snap.Projectors[0].Name)
	assert.Equal(t, int64(2), snap.Projectors[0].LastProcessedSequence)
	assert.Equal(t, int64(1), snap.Projectors[0].LagEvents)
	assert.NotEmpty(t, snap.RecentLogs)
}

func TestRunner_ConcurrentRunsDoNotDoubleApply(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 10, "a", "b")
	p := newSumProjector("sums")
	r := newRunner(store, memory.NewCheckpointStore(), 3, p)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.CatchUp(context.Background(), "sums")
		}()
	}
	wg.Wait()
	assert.Equal(t, row{last: 10, total: 55}, p.snapshot()["a"])
	assert.Equal(t, row{last: 10, total: 55}, p.snapshot()["b"])
}

// gatedCheckpoints holds the first Save until release is closed.
type gatedCheckpoints struct {
	ports.CheckpointStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCheckpoints) Save(ctx context.Context, cp ports.Checkpoint) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.CheckpointStore.Save(ctx, cp)
}

// headHook runs atHead the first time a read reaches the end of the log.
type headHook struct {
	*eventmemory.Store
	once   sync.Once
	atHead func()
}

func (h *headHook) ReadGlobalStream(ctx context.Context, from int64, limit int) ([]eventlog.Event, error) {
	batch, err := h.Store.ReadGlobalStream(ctx, from, limit)
	if err == nil && len(batch) == 0 {
		h.once.Do(h.atHead)
	}
	return batch, err
}

func TestRunner_RebuildFencesOverlappingLiveBatch(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 2, "a")
	cps := memory.NewCheckpointStore()
	p := newSumProjector("sums")
	ctx := context.Background()

	gate := &gatedCheckpoints{CheckpointStore: cps, entered: make(chan struct{}), release: make(chan struct{})}
	live := newRunner(store, gate, 10, p)
	hook := &headHook{Store: store}
	rebuilder := NewRunner(hook, cps, []ports.Projector{p}, WithBatchSize(10))

	_, err := newRunner(store, cps, 10, p).CatchUp(ctx, "sums")
	require.NoError(t, err)

	liveErr := make(chan error, 1)
	hook.atHead = func() {
		_, err := store.Append(ctx, eventports.AppendInput{
			AggregateType: eventlog.AggregateWorkItem,
			AggregateID:   "a",
			Actor:         eventlog.SystemActor("test"),
			Payloads:      []eventlog.Payload{eventlog.WorkItemPriorityAdjusted{Delta: 10}},
		})
		require.NoError(t, err)
		go func() {
			_, err := live.RunOnce(ctx, "sums")
			liveErr <- err
		}()
		<-gate.entered
	}

	res, err := rebuilder.Rebuild(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Position)

	close(gate.release)
	assert.ErrorIs(t, <-liveErr, ports.ErrCheckpointMoved)

	cp, err := cps.Load(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.LastProcessedGlobalSequence)
	assert.Equal(t, int64(1), cp.Generation)

	catch, err := live.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, int64(3), catch.Position)
	assert.Equal(t, row{last: 3, total: 13}, p.snapshot()["a"])
}

func TestRunner_RebuildKeepsPausedStatus(t *testing.T) {
	store := eventmemory.NewStore()
	seedEvents(t, store, 2, "a")
	cps := memory.NewCheckpointStore()
	r := newRunner(store, cps, 10, newSumProjector("sums"))
	ctx := context.Background()

	_, err := r.Pause(ctx, "sums")
	require.NoError(t, err)
	_, err = r.Rebuild(ctx, "sums")
	require.NoError(t, err)

	cp, err := cps.Load(ctx, "sums")
	require.NoError(t, err)
	assert.Equal(t, ports.StatusPaused, cp.Status)
	assert.Equal(t, int64(2), cp.LastProcessedGlobalSequence)

	res, err := r.CatchUp(ctx, "sums")
	require.NoError(t, err)
	assert.True(t, res.Paused)
}
