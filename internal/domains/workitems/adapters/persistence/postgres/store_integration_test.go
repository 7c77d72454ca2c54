//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wipostgres "github.com/Apurer/worktrack/internal/domains/workitems/adapters/persistence/postgres"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/postgres/pgtest"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

var inbox = domain.QueueKey{UserID: "u-1", Lens: "sales", QueueID: "inbox"}

func sampleItem(id string, score int, seq int64) domain.WorkItem {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.WorkItem{
		ID:     id,
		Title:  "Follow up " + id,
		Queue:  inbox,
		Score:  score,
		Status: domain.StatusOpen,
		Signals: []domain.Signal{
			{ID: "sig-1", Type: "email_open", Delta: 5, AttachedAt: now},
		},
		CreatedAt:         now,
		UpdatedAt:         now,
		LastEventSequence: seq,
	}
}

func TestStore_SaveIsMonotonic(t *testing.T) {
	store := wipostgres.NewStore(pgtest.Start(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleItem("wi-1", 60, 2)))

	got, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, inbox, got.Queue)
	require.Len(t, got.Signals, 1)
	assert.Equal(t, "sig-1", got.Signals[0].ID)

	err = store.Save(ctx, sampleItem("wi-1", 10, 2))
	assert.ErrorIs(t, err, projection.ErrStaleWrite)

	got, err = store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Score)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_QueueSummaryRoundTrip(t *testing.T) {
	store := wipostgres.NewStore(pgtest.Start(t))
	ctx := context.Background()

	items := []domain.WorkItem{sampleItem("wi-1", 95, 1), sampleItem("wi-2", 30, 1)}
	for _, item := range items {
		require.NoError(t, store.Save(ctx, item))
	}
	listed, err := store.ListByQueue(ctx, inbox)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	summary := domain.Summarize(inbox, listed, 7, time.Now().UTC())
	require.NoError(t, store.SaveQueue(ctx, summary))

	got, err := store.GetQueue(ctx, inbox)
	require.NoError(t, err)
	assert.Equal(t, summary.TopScore, got.TopScore)

	_, err = store.GetQueue(ctx, domain.QueueKey{UserID: "nobody"})
	assert.ErrorIs(t, err, ports.ErrQueueNotFound)
}

func TestStore_ShadowPromoteReplacesLiveRows(t *testing.T) {
	store := wipostgres.NewStore(pgtest.Start(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleItem("stale", 50, 3)))

	shadow, err := store.Shadow(ctx)
	require.NoError(t, err)
	require.NoError(t, shadow.Save(ctx, sampleItem("wi-1", 70, 1)))

	_, err = store.Get(ctx, "wi-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, shadow.Promote(ctx))

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	got, err := store.Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, 70, got.Score)
}
