package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/worktrack/internal/domains/cases/adapters/memory"
	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventmemory "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/memory"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	projmemory "github.com/Apurer/worktrack/internal/domains/projections/adapters/memory"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

var (
	start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	agent = eventlog.Actor{Type: eventlog.ActorUser, ID: "agent-1"}
)

type fixture struct {
	events  *eventmemory.Store
	store   *memory.Store
	svc     *Service
	runner  *projapp.Runner
	metrics *metrics.Collector
	now     time.Time
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		events:  eventmemory.NewStore(),
		store:   memory.NewStore(),
		metrics: metrics.New(),
		now:     start,
	}
	clock := func() time.Time { return f.now }
	opts = append([]Option{WithMetrics(f.metrics), WithClock(clock)}, opts...)
	f.svc = NewService(f.events, f.store, opts...)
	f.runner = projapp.NewRunner(f.events, projmemory.NewCheckpointStore(),
		[]projports.Projector{NewProjector(f.store, sla.DefaultPolicy(), f.metrics)},
		projapp.WithMetrics(f.metrics))
	return f
}

func (f *fixture) catchUp(t *testing.T) {
	t.Helper()
	_, err := f.runner.CatchUp(context.Background(), ProjectorName)
	require.NoError(t, err)
}

func meta(id string) command.Meta {
	return command.Meta{AggregateID: id, Actor: agent}
}

func (f *fixture) open(t *testing.T, id, severity string) *domain.Case {
	t.Helper()
	c, err := f.svc.OpenCase(context.Background(), types.OpenCaseInput{
		Meta: meta(id), Subject: "cannot log in", CustomerID: "cust-1", Severity: severity,
	})
	require.NoError(t, err)
	return c
}

func TestService_CaseLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.open(t, "case-1", "sev2")
	assert.Equal(t, start.Add(4*time.Hour), c.Deadlines.FirstResponseDueAt)

	f.now = start.Add(time.Hour)
	c, err := f.svc.RecordFirstResponse(ctx, types.RecordFirstResponseInput{Meta: meta("case-1"), ResponderID: "agent-1"})
	require.NoError(t, err)
	require.NotNil(t, c.FirstRespondedAt)
	assert.Equal(t, start.Add(time.Hour), *c.FirstRespondedAt)

	_, err = f.svc.RecordFirstResponse(ctx, types.RecordFirstResponseInput{Meta: meta("case-1"), ResponderID: "agent-2"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	c, err = f.svc.ChangeSeverity(ctx, types.ChangeSeverityInput{Meta: meta("case-1"), Severity: "sev1"})
	require.NoError(t, err)
	assert.Equal(t, start.Add(4*time.Hour), c.Deadlines.ResolutionDueAt)

	c, err = f.svc.ResolveCase(ctx, types.ResolveCaseInput{Meta: meta("case-1"), Resolution: "password reset"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, c.Status)

	_, err = f.svc.ResolveCase(ctx, types.ResolveCaseInput{Meta: meta("case-1")})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	f.now = start.Add(10 * time.Hour)
	c, err = f.svc.ReopenCase(ctx, types.ReopenCaseInput{Meta: meta("case-1"), Reason: "still broken"})
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(4*time.Hour), c.Deadlines.ResolutionDueAt)

	c, err = f.svc.CloseCase(ctx, types.CloseCaseInput{Meta: meta("case-1")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, c.Status)

	_, err = f.svc.RecordCustomerReply(ctx, types.RecordCustomerReplyInput{Meta: meta("case-1"), MessageID: "m-1"})
	var rej *command.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Message, "closed")

	f.catchUp(t)
	stored, err := f.svc.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, c, stored)
}

func TestService_OpenCaseValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.OpenCase(ctx, types.OpenCaseInput{Meta: meta("case-1"), Subject: "x", CustomerID: "c", Severity: "sev9"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)
	_, err = f.svc.OpenCase(ctx, types.OpenCaseInput{Meta: meta("case-1"), Subject: " ", CustomerID: "c", Severity: "sev1"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	f.open(t, "case-1", "sev1")
	_, err = f.svc.OpenCase(ctx, types.OpenCaseInput{Meta: meta("case-1"), Subject: "x", CustomerID: "c", Severity: "sev1"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)

	_, err = f.svc.CloseCase(ctx, types.CloseCaseInput{Meta: meta("case-404")})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

type replyRecorder struct {
	calls []string
	err   error
}

func (r *replyRecorder) CustomerReplied(_ context.Context, c domain.Case, messageID, _ string) error {
	r.calls = append(r.calls, c.ID+"/"+messageID)
	return r.err
}

func TestService_CustomerReplyNotifiesListener(t *testing.T) {
	listener := &replyRecorder{}
	f := newFixture(WithReplyListener(listener))
	ctx := context.Background()
	f.open(t, "case-1", "sev3")

	c, err := f.svc.RecordCustomerReply(ctx, types.RecordCustomerReplyInput{Meta: meta("case-1"), MessageID: "m-1", From: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.ReplyCount)
	assert.Equal(t, []string{"case-1/m-1"}, listener.calls)

	listener.err = errors.New("relay down")
	c, err = f.svc.RecordCustomerReply(ctx, types.RecordCustomerReplyInput{Meta: meta("case-1"), MessageID: "m-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.ReplyCount)

	var logged bool
	for _, entry := range f.metrics.RecentLogs() {
		if entry.Message == "reply side effect failed" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestService_DuplicateReplyRedrivesListener(t *testing.T) {
	listener := &replyRecorder{}
	f := newFixture(WithReplyListener(listener))
	ctx := context.Background()
	f.open(t, "case-1", "sev3")
	in := types.RecordCustomerReplyInput{Meta: meta("case-1"), MessageID: "m-1", From: "a@example.com"}

	_, err := f.svc.RecordCustomerReply(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.RecordCustomerReply(ctx, in)
	assert.ErrorIs(t, err, ports.ErrDuplicateMessage)
	assert.Equal(t, []string{"case-1/m-1", "case-1/m-1"}, listener.calls)

	stream, err := f.events.ReadAggregateStream(ctx, "case-1", 0)
	require.NoError(t, err)
	assert.Len(t, stream, 2)

	f.catchUp(t)
	stored, err := f.svc.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplyCount)
	assert.Equal(t, []string{"m-1"}, stored.MessageIDs)
}

func TestSweeper_FlagsOnceAndIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.open(t, "case-1", "sev1")
	f.open(t, "case-2", "sev4")
	f.catchUp(t)

	sweeper := NewSweeper(f.svc, f.store, f.metrics, func() time.Time { return f.now })
	f.now = start.Add(2 * time.Hour)

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	require.Len(t, res.Breaches, 1)
	assert.Equal(t, Breach{CaseID: "case-1", Kind: sla.KindFirstResponse, DueAt: start.Add(time.Hour)}, res.Breaches[0])

	// read model not caught up yet: the command sees the breach already on the stream
	again, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Breaches)
	assert.Equal(t, 1, again.Skipped)

	f.catchUp(t)
	third, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, third.Breaches)
	assert.Zero(t, third.Skipped)

	latest, err := f.events.LatestGlobalSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	stored, err := f.store.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.True(t, stored.Breaches.FirstResponseBreached)
	assert.False(t, stored.Breaches.ResolutionBreached)
}

func TestSweeper_IgnoresRespondedAndResolvedCases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.open(t, "case-1", "sev1")
	_, err := f.svc.RecordFirstResponse(ctx, types.RecordFirstResponseInput{Meta: meta("case-1"), ResponderID: "agent-1"})
	require.NoError(t, err)
	f.open(t, "case-2", "sev1")
	_, err = f.svc.ResolveCase(ctx, types.ResolveCaseInput{Meta: meta("case-2")})
	require.NoError(t, err)
	f.catchUp(t)

	f.now = start.Add(2 * time.Hour)
	res, err := NewSweeper(f.svc, f.store, nil, func() time.Time { return f.now }).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Breaches)
}

func TestService_MarkSLABreachedRequiresPassedDeadline(t *testing.T) {
	f := newFixture()
	f.open(t, "case-1", "sev2")
	_, err := f.svc.MarkSLABreached(context.Background(), types.MarkSLABreachedInput{Meta: meta("case-1"), Kind: eventlog.BreachFirstResponse})
	assert.ErrorIs(t, err, command.ErrValidationRejected)
	_, err = f.svc.MarkSLABreached(context.Background(), types.MarkSLABreachedInput{Meta: meta("case-1"), Kind: "bogus"})
	assert.ErrorIs(t, err, command.ErrValidationRejected)
}

func TestProjector_RebuildMatchesIncremental(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.open(t, "case-1", "sev1")
	f.open(t, "case-2", "sev3")
	f.now = start.Add(2 * time.Hour)
	_, err := NewSweeper(f.svc, f.store, nil, func() time.Time { return f.now }).Sweep(ctx)
	require.NoError(t, err)
	_, err = f.svc.RecordFirstResponse(ctx, types.RecordFirstResponseInput{Meta: meta("case-1"), ResponderID: "agent-1"})
	require.NoError(t, err)
	f.catchUp(t)

	before, err := f.store.ListOpen(ctx)
	require.NoError(t, err)

	res, err := f.runner.Rebuild(ctx, ProjectorName)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Position)

	after, err := f.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProjector_DuplicateAndStaleDeliveries(t *testing.T) {
	store := memory.NewStore()
	p := NewProjector(store, sla.DefaultPolicy(), nil)
	ctx := context.Background()
	openEvt := eventlog.Event{
		GlobalSequence: 1, AggregateType: eventlog.AggregateCase, AggregateID: "case-1", AggregateSequence: 1,
		Type: eventlog.TypeCaseOpened, Data: eventlog.CaseOpened{Subject: "s", Severity: "sev2"}, OccurredAt: start,
	}
	applied, err := p.Project(ctx, openEvt)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.Project(ctx, openEvt)
	require.NoError(t, err)
	assert.False(t, applied)

	orphan := eventlog.Event{
		GlobalSequence: 2, AggregateType: eventlog.AggregateCase, AggregateID: "case-2", AggregateSequence: 2,
		Type: eventlog.TypeCaseClosed, Data: eventlog.CaseClosed{}, OccurredAt: start,
	}
	applied, err = p.Project(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = store.Get(ctx, "case-2")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
