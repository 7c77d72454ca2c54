//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookpostgres "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/persistence/postgres"
	"github.com/Apurer/worktrack/internal/domains/webhooks/domain"
	"github.com/Apurer/worktrack/internal/platform/postgres/pgtest"
)

func TestClaimStore_ClaimOnceThenRelease(t *testing.T) {
	claims := webhookpostgres.NewClaimStore(pgtest.Start(t))
	ctx := context.Background()

	first, err := claims.Claim(ctx, "case-1", "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := claims.Claim(ctx, "case-1", "msg-1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := claims.Claim(ctx, "case-2", "msg-1")
	require.NoError(t, err)
	assert.True(t, other)

	require.NoError(t, claims.Release(ctx, "case-1", "msg-1"))
	reclaimed, err := claims.Claim(ctx, "case-1", "msg-1")
	require.NoError(t, err)
	assert.True(t, reclaimed)
}

func TestSideEffectLog_LastSentAndDue(t *testing.T) {
	log := webhookpostgres.NewSideEffectLog(pgtest.Start(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sentAt := now.Add(-5 * time.Minute)

	require.NoError(t, log.Append(ctx, domain.SideEffect{
		ID: "se-1", AggregateID: "case-1", Kind: domain.KindAutoAck, ExternalMessageID: "msg-1",
		Recipient: "a@example.com", Subject: "Re: help", Status: domain.StatusSent,
		ScheduledAt: sentAt, SentAt: &sentAt, Attempts: 1, CreatedAt: sentAt,
	}))
	deferred := domain.SideEffect{
		ID: "se-2", AggregateID: "case-1", Kind: domain.KindAutoAck, ExternalMessageID: "msg-2",
		Recipient: "a@example.com", Subject: "Re: help", Status: domain.StatusDeferred,
		ScheduledAt: now.Add(5 * time.Minute), CreatedAt: now,
	}
	require.NoError(t, log.Append(ctx, deferred))

	last, err := log.LastSent(ctx, "case-1", domain.KindAutoAck)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "se-1", last.ID)
	assert.True(t, domain.NextAllowed(last, 10*time.Minute).Equal(deferred.ScheduledAt))

	due, err := log.ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = log.ListDue(ctx, now.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "se-2", due[0].ID)

	deferred.Status = domain.StatusFailed
	deferred.Attempts = domain.MaxAttempts
	deferred.LastError = "relay down"
	require.NoError(t, log.Update(ctx, deferred))

	due, err = log.ListDue(ctx, now.Add(10*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	none, err := log.LastSent(ctx, "case-2", domain.KindAutoAck)
	require.NoError(t, err)
	assert.Nil(t, none)
}
