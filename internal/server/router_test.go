package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casememory "github.com/Apurer/worktrack/internal/domains/cases/adapters/memory"
	caseapp "github.com/Apurer/worktrack/internal/domains/cases/application"
	eventmemory "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/memory"
	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projmemory "github.com/Apurer/worktrack/internal/domains/projections/adapters/memory"
	projworkflows "github.com/Apurer/worktrack/internal/domains/projections/adapters/workflows"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/adapters/mailer"
	webhookmemory "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/memory"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
	wimemory "github.com/Apurer/worktrack/internal/domains/workitems/adapters/memory"
	wiapp "github.com/Apurer/worktrack/internal/domains/workitems/application"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	apierrors "github.com/Apurer/worktrack/internal/shared/errors"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type stack struct {
	router *gin.Engine
	runner *projapp.Runner
}

func newStack(t *testing.T) stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return now }
	m := metrics.New(metrics.WithClock(clock))
	events := eventmemory.NewStore()
	wiStore := wimemory.NewStore()
	caseStore := casememory.NewStore()

	workItems := wiapp.NewService(events, wiStore, wiapp.WithMetrics(m), wiapp.WithClock(clock))
	cases := caseapp.NewService(events, caseStore, caseapp.WithMetrics(m), caseapp.WithClock(clock))
	claims := webhookmemory.NewClaimStore()
	responder := webhookapp.NewAutoResponder(claims, webhookmemory.NewSideEffectLog(), mailer.NewLog(nil),
		webhookapp.WithClock(clock), webhookapp.WithMetrics(m))
	cases.SetReplyListener(responder)

	runner := projapp.NewRunner(events, projmemory.NewCheckpointStore(), []projports.Projector{
		wiapp.NewProjector(wiStore, m),
		caseapp.NewProjector(caseStore, sla.DefaultPolicy(), m),
	}, projapp.WithMetrics(m), projapp.WithClock(clock))

	router := NewRouter(Dependencies{
		WorkItems:   workItems,
		Cases:       cases,
		Projections: runner,
		Rebuilds:    projworkflows.NewInlineRebuilds(runner),
		Maintenance: maintapp.NewService(caseapp.NewSweeper(cases, caseStore, m, clock), responder, runner, m, clock),
		Calendar:    webhookapp.NewCalendar(claims, workItems, m, clock),
		Inbound:     webhookapp.NewInbound(claims, cases),
		Metrics:     m,
	})
	return stack{router: router, runner: runner}
}

func (s stack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s stack) catchUp(t *testing.T) {
	t.Helper()
	_, err := s.runner.CatchUpAll(context.Background())
	require.NoError(t, err)
}

func userCommand(commandType, id string, payload map[string]any) map[string]any {
	return map[string]any{
		"command_type": commandType,
		"aggregate_id": id,
		"actor":        map[string]string{"type": "user", "id": "u-1"},
		"payload":      payload,
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) apierrors.ProblemDetail {
	t.Helper()
	assert.Equal(t, apierrors.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
	var problem apierrors.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func createWorkItem(t *testing.T, s stack, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/commands", userCommand("CreateWorkItem", id, map[string]any{
		"title": "Call back", "user_id": "u-1", "lens": "sales", "queue_id": "inbox", "priority": "high",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitCommand_ReturnsSnapshotAndProjects(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodPost, "/v1/commands", userCommand("CreateWorkItem", "wi-1", map[string]any{
		"title": "Call back", "user_id": "u-1", "lens": "sales", "queue_id": "inbox", "priority": "high",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.WorkItem)
	assert.Equal(t, "wi-1", resp.AggregateID)
	assert.Equal(t, 80, resp.WorkItem.Score)
	assert.Equal(t, "high", resp.WorkItem.Priority)
	assert.Equal(t, int64(1), resp.WorkItem.LastEventSequence)

	s.catchUp(t)

	rec = s.do(t, http.MethodGet, "/v1/work-items/wi-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Call back"`)

	rec = s.do(t, http.MethodGet, "/v1/queues/u-1/sales/inbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue struct {
		OpenCount int      `json:"open_count"`
		ItemIDs   []string `json:"item_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Equal(t, 1, queue.OpenCount)
	assert.Equal(t, []string{"wi-1"}, queue.ItemIDs)
}

func TestSubmitCommand_Rejections(t *testing.T) {
	s := newStack(t)
	createWorkItem(t, s, "wi-1")

	rec := s.do(t, http.MethodPost, "/v1/commands", userCommand("Teleport", "wi-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_command", decodeProblem(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/v1/commands", userCommand("CreateWorkItem", "wi-1", map[string]any{"title": "again"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "validation_rejected", problem.Code)
	assert.Equal(t, "work item wi-1 already exists", problem.Detail)

	stale := userCommand("AdjustPriority", "wi-1", map[string]any{"delta": 10})
	stale["expected_aggregate_sequence"] = 7
	rec = s.do(t, http.MethodPost, "/v1/commands", stale)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "concurrency_conflict", decodeProblem(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/v1/commands", userCommand("ResolveCase", "case-404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeProblem(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/v1/commands", userCommand("AdjustPriority", "wi-1", map[string]any{"delta": "ten"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, "invalid payload")

	trigger := userCommand("ApplyMeetingTrigger", "wi-1", map[string]any{
		"meeting_id": "m-1", "trigger": "SchedulingRequested", "notification_id": "n-1",
	})
	rec = s.do(t, http.MethodPost, "/v1/commands", trigger)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/v1/commands", trigger)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_notification", decodeProblem(t, rec).Code)
}

func TestGetWorkItem_NotFound(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodGet, "/v1/work-items/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/v1/work-items/missing", decodeProblem(t, rec).Instance)
}

func TestCalendarWebhook(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodPost, "/v1/webhooks/calendar?validationToken=abc%20123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc 123", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	createWorkItem(t, s, "wi-1")
	delivery := map[string]any{"value": []map[string]any{
		{"id": "n-1", "work_item_id": "wi-1", "meeting_id": "m-1", "event_type": "scheduling_requested"},
		{"id": "n-1", "work_item_id": "wi-1", "meeting_id": "m-1", "event_type": "scheduling_requested"},
		{"id": "n-2", "work_item_id": "wi-404", "event_type": "scheduling_requested"},
	}}
	rec = s.do(t, http.MethodPost, "/v1/webhooks/calendar", delivery)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var result webhookapp.CalendarResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, webhookapp.CalendarResult{Applied: 1, Duplicates: 1, Rejected: 1}, result)
}

func TestInboundEmailWebhook_DuplicateIsConflict(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodPost, "/v1/commands", userCommand("OpenCase", "case-1", map[string]any{
		"subject": "Printer on fire", "customer_id": "cust-1", "severity": "sev2",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	email := map[string]any{"message_id": "msg-1", "case_id": "case-1", "from": "ann@example.com"}
	rec = s.do(t, http.MethodPost, "/v1/webhooks/inbound-email", email)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reply_count":1`)

	rec = s.do(t, http.MethodPost, "/v1/webhooks/inbound-email", email)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_message", decodeProblem(t, rec).Code)
}

func TestMetricsEndpoints(t *testing.T) {
	s := newStack(t)
	createWorkItem(t, s, "wi-1")
	s.catchUp(t)

	rec := s.do(t, http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot projapp.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.LatestEventSequence)
	require.Len(t, snapshot.Projectors, 2)
	for _, p := range snapshot.Projectors {
		assert.Zero(t, p.LagEvents, p.Name)
	}

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "worktrack_commands_total")
}

func TestProjectorOperations(t *testing.T) {
	s := newStack(t)
	createWorkItem(t, s, "wi-1")

	rec := s.do(t, http.MethodPost, "/internal/projectors/nope/pause", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/internal/projectors/"+wiapp.ProjectorName+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paused"`)

	rec = s.do(t, http.MethodPost, "/internal/projectors/"+wiapp.ProjectorName+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = s.do(t, http.MethodPost, "/internal/projectors/"+wiapp.ProjectorName+"/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result projapp.RebuildResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Replayed)
	assert.Equal(t, int64(1), result.Position)

	rec = s.do(t, http.MethodGet, "/v1/work-items/wi-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSweep(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodPost, "/internal/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result maintapp.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Skipped)
	assert.True(t, now.Equal(result.StartedAt))
}
