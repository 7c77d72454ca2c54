//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	projpostgres "github.com/Apurer/worktrack/internal/domains/projections/adapters/persistence/postgres"
	"github.com/Apurer/worktrack/internal/domains/projections/ports"
	"github.com/Apurer/worktrack/internal/platform/postgres/pgtest"
)

func TestCheckpointStore_UpsertAndList(t *testing.T) {
	store := projpostgres.NewCheckpointStore(pgtest.Start(t))
	ctx := context.Background()

	missing, err := store.Load(ctx, "work_items")
	require.NoError(t, err)
	assert.Nil(t, missing)

	processedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cp := ports.NewCheckpoint("work_items")
	cp.LastProcessedGlobalSequence = 10
	cp.EventsProcessedCount = 10
	cp.LastProcessedAt = &processedAt
	require.NoError(t, store.Save(ctx, cp))

	cp.LastProcessedGlobalSequence = 12
	cp.EventsProcessedCount = 12
	cp.ErrorsCount = 1
	cp.LastError = "decode failed"
	cp.Status = ports.StatusError
	require.NoError(t, store.Save(ctx, cp))
	require.NoError(t, store.Save(ctx, ports.NewCheckpoint("cases")))

	got, err := store.Load(ctx, "work_items")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(12), got.LastProcessedGlobalSequence)
	assert.Equal(t, ports.StatusError, got.Status)
	assert.Equal(t, "decode failed", got.LastError)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cases", all[0].ProjectorName)
}

func TestCheckpointStore_ResetFencesStaleSaves(t *testing.T) {
	store := projpostgres.NewCheckpointStore(pgtest.Start(t))
	ctx := context.Background()

	cp := ports.NewCheckpoint("work_items")
	cp.LastProcessedGlobalSequence = 5
	cp.Status = ports.StatusPaused
	require.NoError(t, store.Save(ctx, cp))
	loaded, err := store.Load(ctx, "work_items")
	require.NoError(t, err)

	rebuilt := ports.NewCheckpoint("work_items")
	rebuilt.LastProcessedGlobalSequence = 4
	require.NoError(t, store.Reset(ctx, rebuilt))

	stale := *loaded
	stale.LastProcessedGlobalSequence = 9
	assert.ErrorIs(t, store.Save(ctx, stale), ports.ErrCheckpointMoved)

	got, err := store.Load(ctx, "work_items")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.LastProcessedGlobalSequence)
	assert.Equal(t, int64(1), got.Generation)
	assert.Equal(t, ports.StatusPaused, got.Status)

	got.LastProcessedGlobalSequence = 9
	require.NoError(t, store.Save(ctx, *got))
}
