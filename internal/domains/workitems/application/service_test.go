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
	"github.com/Apurer/worktrack/internal/domains/workitems/adapters/memory"
	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

var (
	clock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	user  = eventlog.Actor{Type: eventlog.ActorUser, ID: "u-1"}
)

func meta(id string) command.Meta {
	return command.Meta{AggregateID: id, Actor: user}
}

func newTestService(events eventports.EventStore) (*Service, *memory.Store, *metrics.Collector) {
	store := memory.NewStore()
	m := metrics.New()
	return NewService(events, store, WithMetrics(m), WithClock(func() time.Time { return clock })), store, m
}

func createItem(t *testing.T, svc *Service, id string, score *int, tier string) *domain.WorkItem {
	t.Helper()
	item, err := svc.CreateWorkItem(context.Background(), types.CreateWorkItemInput{
		Meta:     meta(id),
		Title:    "Call back " + id,
		UserID:   "u-1",
		Lens:     "sales",
		QueueID:  "inbox",
		Priority: tier,
		Score:    score,
	})
	require.NoError(t, err)
	return item
}

func intPtr(v int) *int { return &v }

func TestService_CreateAndUpdatePriority(t *testing.T) {
	svc, _, m := newTestService(eventmemory.NewStore())
	ctx := context.Background()

	item := createItem(t, svc, "wi-1", intPtr(50), "medium")
	assert.Equal(t, int64(1), item.LastEventSequence)
	assert.Equal(t, clock, item.CreatedAt)

	item, err := svc.UpdatePriority(ctx, types.UpdatePriorityInput{Meta: meta("wi-1"), NewScore: 80})
	require.NoError(t, err)
	assert.Equal(t, 80, item.Score)
	assert.Equal(t, domain.TierHigh, item.Priority())
	assert.Equal(t, domain.StatusOpen, item.Status)

	totals := m.Totals()
	assert.Equal(t, int64(1), totals.Commands[types.CommandUpdatePriority].Succeeded)
	assert.Equal(t, int64(1), totals.EventsAppended[string(eventlog.TypeWorkItemPriorityUpdated)])
}

func TestService_Rejections(t *testing.T) {
	svc, _, m := newTestService(eventmemory.NewStore())
	ctx := context.Background()
	createItem(t, svc, "wi-1", nil, "high")

	_, err := svc.CreateWorkItem(ctx, types.CreateWorkItemInput{Meta: meta("wi-1"), Title: "dup", UserID: "u", Lens: "l", QueueID: "q"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	_, err = svc.CreateWorkItem(ctx, types.CreateWorkItemInput{Meta: meta("wi-2"), Title: "x", UserID: "u", Lens: "l", QueueID: "q", Priority: "urgent"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	_, err = svc.AdjustPriority(ctx, types.AdjustPriorityInput{Meta: meta("missing"), Delta: 5})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = svc.ResolveWorkItem(ctx, types.ResolveWorkItemInput{Meta: meta("wi-1"), Reason: "done"})
	require.NoError(t, err)
	_, err = svc.ResolveWorkItem(ctx, types.ResolveWorkItemInput{Meta: meta("wi-1"), Reason: "again"})
	var rej *command.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Message, "already resolved")

	_, err = svc.SnoozeWorkItem(ctx, types.SnoozeWorkItemInput{Meta: meta("wi-1"), Until: clock.Add(time.Hour)})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	_, err = svc.CreateWorkItem(ctx, types.CreateWorkItemInput{Meta: command.Meta{AggregateID: "wi-3"}, Title: "x"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	assert.Equal(t, int64(4), m.Totals().Commands[types.CommandCreateWorkItem].Executed)
	assert.Equal(t, int64(3), m.Totals().Commands[types.CommandCreateWorkItem].Failed)
}

func TestService_RejectionAppendsNothing(t *testing.T) {
	events := eventmemory.NewStore()
	svc, _, _ := newTestService(events)
	createItem(t, svc, "wi-1", nil, "")

	_, err := svc.AttachSignal(context.Background(), types.AttachSignalInput{Meta: meta("wi-1")})
	require.Error(t, err)
	latest, err := events.LatestGlobalSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)
}

func TestService_ExpectedSequenceConflictIsReturned(t *testing.T) {
	svc, _, _ := newTestService(eventmemory.NewStore())
	createItem(t, svc, "wi-1", nil, "")

	stale := int64(0)
	_, err := svc.AdjustPriority(context.Background(), types.AdjustPriorityInput{
		Meta:  command.Meta{AggregateID: "wi-1", Actor: user, ExpectedSequence: &stale},
		Delta: 5,
	})
	assert.ErrorIs(t, err, eventports.ErrConcurrencyConflict)
}

// racingStore lets another writer win the first append.
type racingStore struct {
	*eventmemory.Store
	once sync.Once
}

func (r *racingStore) Append(ctx context.Context, in eventports.AppendInput) ([]eventlog.Event, error) {
	r.once.Do(func() {
		_, _ = r.Store.Append(ctx, eventports.AppendInput{
			AggregateType: eventlog.AggregateWorkItem,
			AggregateID:   in.AggregateID,
			Actor:         eventlog.SystemActor("rival"),
			Payloads:      []eventlog.Payload{eventlog.WorkItemPriorityAdjusted{Delta: 1}},
		})
	})
	return r.Store.Append(ctx, in)
}

func TestService_RetriesConflictWithoutExpectedSequence(t *testing.T) {
	base := eventmemory.NewStore()
	plain, _, _ := newTestService(base)
	createItem(t, plain, "wi-1", intPtr(50), "")

	svc, _, _ := newTestService(&racingStore{Store: base})
	item, err := svc.AdjustPriority(context.Background(), types.AdjustPriorityInput{Meta: meta("wi-1"), Delta: 10})
	require.NoError(t, err)
	assert.Equal(t, 61, item.Score)
	assert.Equal(t, int64(3), item.LastEventSequence)
}

func TestService_ApplyMeetingTriggerResolvesAndReopens(t *testing.T) {
	svc, _, _ := newTestService(eventmemory.NewStore())
	ctx := context.Background()
	createItem(t, svc, "wi-1", nil, "high")
	_, err := svc.AttachSignal(ctx, types.AttachSignalInput{Meta: meta("wi-1"), SignalID: "sig-1", SignalType: "meeting_scheduled", Delta: 5})
	require.NoError(t, err)

	item, err := svc.ApplyMeetingTrigger(ctx, types.ApplyMeetingTriggerInput{Meta: meta("wi-1"), MeetingID: "m-1", Trigger: "SchedulingRequested"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, item.Status)

	item, err = svc.ApplyMeetingTrigger(ctx, types.ApplyMeetingTriggerInput{Meta: meta("wi-1"), MeetingID: "m-1", Trigger: "MeetingBooked"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, item.Status)
	assert.Equal(t, "meeting_scheduled", item.ResolvedBy)
	assert.True(t, item.HasBookedMeeting)

	item, err = svc.ApplyMeetingTrigger(ctx, types.ApplyMeetingTriggerInput{Meta: meta("wi-1"), MeetingID: "m-1", Trigger: "MeetingCancelled"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, item.Status)
	assert.False(t, item.HasBookedMeeting)
	assert.Equal(t, int64(7), item.LastEventSequence)
}

func TestService_ApplyMeetingTriggerRefusesRepeatedNotification(t *testing.T) {
	events := eventmemory.NewStore()
	svc, _, _ := newTestService(events)
	ctx := context.Background()
	createItem(t, svc, "wi-1", nil, "high")
	in := types.ApplyMeetingTriggerInput{Meta: meta("wi-1"), MeetingID: "m-1", Trigger: "SchedulingRequested", NotificationID: "n-1"}

	item, err := svc.ApplyMeetingTrigger(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"n-1"}, item.NotificationIDs)

	_, err = svc.ApplyMeetingTrigger(ctx, in)
	assert.ErrorIs(t, err, ports.ErrDuplicateNotification)

	stream, err := events.ReadAggregateStream(ctx, "wi-1", 0)
	require.NoError(t, err)
	assert.Len(t, stream, 2)
}

func TestService_AssignAndSnooze(t *testing.T) {
	svc, _, _ := newTestService(eventmemory.NewStore())
	ctx := context.Background()
	createItem(t, svc, "wi-1", nil, "")

	_, err := svc.AssignWorkItem(ctx, types.AssignWorkItemInput{Meta: meta("wi-1"), UserID: "u-1", Lens: "sales", QueueID: "inbox"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	item, err := svc.AssignWorkItem(ctx, types.AssignWorkItemInput{Meta: meta("wi-1"), UserID: "u-2", Lens: "sales", QueueID: "inbox"})
	require.NoError(t, err)
	assert.Equal(t, "u-2", item.Queue.UserID)

	_, err = svc.SnoozeWorkItem(ctx, types.SnoozeWorkItemInput{Meta: meta("wi-1"), Until: clock.Add(-time.Minute)})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	item, err = svc.SnoozeWorkItem(ctx, types.SnoozeWorkItemInput{Meta: meta("wi-1"), Until: clock.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSnoozed, item.Status)

	item, err = svc.ReopenWorkItem(ctx, types.ReopenWorkItemInput{Meta: meta("wi-1"), Reason: "wake"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, item.Status)
	assert.Nil(t, item.SnoozedUntil)
}

func TestService_LoadUsesCachedProjection(t *testing.T) {
	events := eventmemory.NewStore()
	svc, store, _ := newTestService(events)
	ctx := context.Background()
	createItem(t, svc, "wi-1", intPtr(40), "")
	_, err := svc.AdjustPriority(ctx, types.AdjustPriorityInput{Meta: meta("wi-1"), Delta: 5})
	require.NoError(t, err)

	// the projector has caught up to sequence 1 only
	stream, err := events.ReadAggregateStream(ctx, "wi-1", 0)
	require.NoError(t, err)
	cached, err := domain.Fold(nil, stream[:1])
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, *cached))

	item, err := svc.AdjustPriority(ctx, types.AdjustPriorityInput{Meta: meta("wi-1"), Delta: 5})
	require.NoError(t, err)
	assert.Equal(t, 50, item.Score)
	assert.Equal(t, int64(3), item.LastEventSequence)
}
