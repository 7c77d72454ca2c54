package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventmemory "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/memory"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	projmemory "github.com/Apurer/worktrack/internal/domains/projections/adapters/memory"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/domains/workitems/adapters/memory"
	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/platform/metrics"
)

func workItemEvent(id string, seq, global int64, payload eventlog.Payload) eventlog.Event {
	return eventlog.Event{
		GlobalSequence:    global,
		AggregateType:     eventlog.AggregateWorkItem,
		AggregateID:       id,
		AggregateSequence: seq,
		Type:              payload.EventType(),
		Data:              payload,
		OccurredAt:        clock.Add(time.Duration(seq) * time.Minute),
		Actor:             user,
	}
}

func created(id string, score int) eventlog.Event {
	return workItemEvent(id, 1, 1, eventlog.WorkItemCreated{
		Title: id, UserID: "u-1", Lens: "sales", QueueID: "inbox", Score: &score,
	})
}

func TestProjector_ScoreUpdateRetiers(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, nil)
	ctx := context.Background()

	applied, err := p.Project(ctx, created("wi-1", 50))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.Project(ctx, workItemEvent("wi-1", 2, 2, eventlog.WorkItemPriorityUpdated{NewScore: 80}))
	require.NoError(t, err)
	assert.True(t, applied)

	item, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, 80, item.Score)
	assert.Equal(t, domain.TierHigh, item.Priority())

	queue, err := store.GetQueue(ctx, item.Queue)
	require.NoError(t, err)
	assert.Equal(t, domain.TierCounts{High: 1}, queue.Counts)
	assert.Equal(t, int64(2), queue.LastGlobalSequence)
}

func TestProjector_DuplicateDeliveryIsSkipped(t *testing.T) {
	store := memory.NewStore()
	m := metrics.New()
	p := NewProjector(store, m)
	ctx := context.Background()

	_, err := p.Project(ctx, created("wi-1", 50))
	require.NoError(t, err)
	adjust := workItemEvent("wi-1", 2, 2, eventlog.WorkItemPriorityAdjusted{Delta: 10})

	applied, err := p.Project(ctx, adjust)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.Project(ctx, adjust)
	require.NoError(t, err)
	assert.False(t, applied)

	item, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, 60, item.Score)
	processed := m.Totals().EventsProcessed[ProjectorName]
	assert.Equal(t, int64(2), processed.Applied)
	assert.Equal(t, int64(1), processed.Skipped)
}

func TestProjector_RedeliveredSignalAttachesOnce(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, nil)
	ctx := context.Background()

	_, err := p.Project(ctx, created("wi-1", 50))
	require.NoError(t, err)
	signal := workItemEvent("wi-1", 2, 2, eventlog.WorkItemSignalAttached{SignalID: "sig-1", SignalType: "pricing_viewed", Delta: 10})

	applied, err := p.Project(ctx, signal)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.Project(ctx, signal)
	require.NoError(t, err)
	assert.False(t, applied)

	item, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Len(t, item.Signals, 1)
	assert.Equal(t, 60, item.Score)
}

func TestProjector_OutOfOrderEventLeavesRowUnchanged(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, nil)
	ctx := context.Background()

	_, err := p.Project(ctx, created("wi-1", 50))
	require.NoError(t, err)
	for seq := int64(2); seq <= 5; seq++ {
		_, err := p.Project(ctx, workItemEvent("wi-1", seq, seq, eventlog.WorkItemPriorityAdjusted{Delta: 1}))
		require.NoError(t, err)
	}
	before, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), before.LastEventSequence)

	applied, err := p.Project(ctx, workItemEvent("wi-1", 3, 3, eventlog.WorkItemPriorityUpdated{NewScore: 5}))
	require.NoError(t, err)
	assert.False(t, applied)

	after, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProjector_EventBeforeCreateIsStale(t *testing.T) {
	p := NewProjector(memory.NewStore(), nil)
	applied, err := p.Project(context.Background(), workItemEvent("wi-9", 2, 2, eventlog.WorkItemPriorityAdjusted{Delta: 1}))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestProjector_IgnoresOtherAggregates(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, nil)
	evt := eventlog.Event{
		GlobalSequence:    1,
		AggregateType:     eventlog.AggregateCase,
		AggregateID:       "case-1",
		AggregateSequence: 1,
		Type:              eventlog.TypeCaseClosed,
		Data:              eventlog.CaseClosed{},
	}
	applied, err := p.Project(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestProjector_ReassignmentRefreshesBothQueues(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, nil)
	ctx := context.Background()

	_, err := p.Project(ctx, created("wi-1", 90))
	require.NoError(t, err)
	_, err = p.Project(ctx, workItemEvent("wi-1", 2, 2, eventlog.WorkItemAssigned{UserID: "u-2", Lens: "sales", QueueID: "inbox"}))
	require.NoError(t, err)

	oldQueue, err := store.GetQueue(ctx, domain.QueueKey{UserID: "u-1", Lens: "sales", QueueID: "inbox"})
	require.NoError(t, err)
	assert.Equal(t, 0, oldQueue.OpenCount)
	assert.Empty(t, oldQueue.ItemIDs)

	newQueue, err := store.GetQueue(ctx, domain.QueueKey{UserID: "u-2", Lens: "sales", QueueID: "inbox"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wi-1"}, newQueue.ItemIDs)
	assert.Equal(t, domain.TierCounts{Critical: 1}, newQueue.Counts)
}

func TestProjector_RebuildMatchesIncremental(t *testing.T) {
	events := eventmemory.NewStore()
	store := memory.NewStore()
	svc := NewService(events, store, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	for _, id := range []string{"wi-1", "wi-2", "wi-3"} {
		createItem(t, svc, id, nil, "medium")
	}
	_, err := svc.AdjustPriority(ctx, types.AdjustPriorityInput{Meta: meta("wi-1"), Delta: 45})
	require.NoError(t, err)
	_, err = svc.AssignWorkItem(ctx, types.AssignWorkItemInput{Meta: meta("wi-2"), UserID: "u-3", Lens: "sales", QueueID: "later"})
	require.NoError(t, err)
	_, err = svc.SnoozeWorkItem(ctx, types.SnoozeWorkItemInput{Meta: meta("wi-3"), Until: clock.Add(24 * time.Hour)})
	require.NoError(t, err)

	runner := projapp.NewRunner(events, projmemory.NewCheckpointStore(), []projports.Projector{NewProjector(store, nil)}, projapp.WithBatchSize(2))
	_, err = runner.CatchUp(ctx, ProjectorName)
	require.NoError(t, err)

	inbox := domain.QueueKey{UserID: "u-1", Lens: "sales", QueueID: "inbox"}
	incremental, err := store.GetQueue(ctx, inbox)
	require.NoError(t, err)
	assert.Equal(t, []string{"wi-1"}, incremental.ItemIDs)
	assert.Equal(t, 1, incremental.SnoozedCount)
	itemBefore, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)

	res, err := runner.Rebuild(ctx, ProjectorName)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Replayed)
	assert.Equal(t, int64(6), res.Position)

	rebuilt, err := store.GetQueue(ctx, inbox)
	require.NoError(t, err)
	assert.Equal(t, incremental, rebuilt)
	itemAfter, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, itemBefore, itemAfter)
}
