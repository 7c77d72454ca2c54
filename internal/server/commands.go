package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	casehttpmapper "github.com/Apurer/worktrack/internal/domains/cases/adapters/http/mapper"
	casetypes "github.com/Apurer/worktrack/internal/domains/cases/application/types"
	casedomain "github.com/Apurer/worktrack/internal/domains/cases/domain"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	wihttpmapper "github.com/Apurer/worktrack/internal/domains/workitems/adapters/http/mapper"
	witypes "github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	widomain "github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// CommandRequest is the command envelope accepted by POST /v1/commands.
type CommandRequest struct {
	CommandType               string          `json:"command_type"`
	AggregateID               string          `json:"aggregate_id"`
	Payload                   json.RawMessage `json:"payload"`
	Actor                     eventlog.Actor  `json:"actor"`
	ExpectedAggregateSequence *int64          `json:"expected_aggregate_sequence,omitempty"`
}

// CommandResponse carries the projection snapshot after a successful command.
type CommandResponse struct {
	CommandType string                 `json:"command_type"`
	AggregateID string                 `json:"aggregate_id"`
	WorkItem    *wihttpmapper.WorkItem `json:"work_item,omitempty"`
	Case        *casehttpmapper.Case   `json:"case,omitempty"`
}

type commandHandler func(ctx context.Context, meta command.Meta, payload json.RawMessage) (CommandResponse, error)

// Post /v1/commands
// Submits a command to the work item or support case handler
func (a *api) SubmitCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.responder.BadRequest(c, err.Error())
		return
	}
	handler, ok := a.commands[req.CommandType]
	if !ok {
		a.fail(c, fmt.Errorf("%w: %q", command.ErrUnknownCommand, req.CommandType))
		return
	}
	meta := command.Meta{
		AggregateID:      req.AggregateID,
		ExpectedSequence: req.ExpectedAggregateSequence,
		Actor:            req.Actor,
	}
	resp, err := handler(c.Request.Context(), meta, req.Payload)
	if err != nil {
		a.fail(c, err)
		return
	}
	resp.CommandType = req.CommandType
	resp.AggregateID = req.AggregateID
	c.JSON(http.StatusOK, resp)
}

func (a *api) commandTable() map[string]commandHandler {
	table := map[string]commandHandler{}
	if wi := a.deps.WorkItems; wi != nil {
		table[witypes.CommandCreateWorkItem] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.CreateWorkItem) (*widomain.WorkItem, error) {
			return wi.CreateWorkItem(ctx, p.Input(meta))
		})
		table[witypes.CommandUpdatePriority] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.UpdatePriority) (*widomain.WorkItem, error) {
			in, err := p.Input(meta)
			if err != nil {
				return nil, err
			}
			return wi.UpdatePriority(ctx, in)
		})
		table[witypes.CommandAdjustPriority] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.AdjustPriority) (*widomain.WorkItem, error) {
			return wi.AdjustPriority(ctx, p.Input(meta))
		})
		table[witypes.CommandAttachSignal] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.AttachSignal) (*widomain.WorkItem, error) {
			return wi.AttachSignal(ctx, p.Input(meta))
		})
		table[witypes.CommandAssignWorkItem] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.AssignWorkItem) (*widomain.WorkItem, error) {
			return wi.AssignWorkItem(ctx, p.Input(meta))
		})
		table[witypes.CommandSnoozeWorkItem] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.SnoozeWorkItem) (*widomain.WorkItem, error) {
			in, err := p.Input(meta)
			if err != nil {
				return nil, err
			}
			return wi.SnoozeWorkItem(ctx, in)
		})
		table[witypes.CommandResolveWorkItem] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.Reason) (*widomain.WorkItem, error) {
			return wi.ResolveWorkItem(ctx, witypes.ResolveWorkItemInput{Meta: meta, Reason: p.Reason})
		})
		table[witypes.CommandReopenWorkItem] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.Reason) (*widomain.WorkItem, error) {
			return wi.ReopenWorkItem(ctx, witypes.ReopenWorkItemInput{Meta: meta, Reason: p.Reason})
		})
		table[witypes.CommandApplyMeetingTrigger] = workItemCommand(func(ctx context.Context, meta command.Meta, p wihttpmapper.ApplyMeetingTrigger) (*widomain.WorkItem, error) {
			return wi.ApplyMeetingTrigger(ctx, p.Input(meta))
		})
	}
	if cs := a.deps.Cases; cs != nil {
		table[casetypes.CommandOpenCase] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.OpenCase) (*casedomain.Case, error) {
			return cs.OpenCase(ctx, p.Input(meta))
		})
		table[casetypes.CommandRecordFirstResponse] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.RecordFirstResponse) (*casedomain.Case, error) {
			return cs.RecordFirstResponse(ctx, casetypes.RecordFirstResponseInput{Meta: meta, ResponderID: p.ResponderID})
		})
		table[casetypes.CommandChangeSeverity] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.ChangeSeverity) (*casedomain.Case, error) {
			return cs.ChangeSeverity(ctx, casetypes.ChangeSeverityInput{Meta: meta, Severity: p.Severity})
		})
		table[casetypes.CommandRecordCustomerReply] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.RecordCustomerReply) (*casedomain.Case, error) {
			return cs.RecordCustomerReply(ctx, p.Input(meta))
		})
		table[casetypes.CommandResolveCase] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.ResolveCase) (*casedomain.Case, error) {
			return cs.ResolveCase(ctx, casetypes.ResolveCaseInput{Meta: meta, Resolution: p.Resolution})
		})
		table[casetypes.CommandReopenCase] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.ReopenCase) (*casedomain.Case, error) {
			return cs.ReopenCase(ctx, casetypes.ReopenCaseInput{Meta: meta, Reason: p.Reason})
		})
		table[casetypes.CommandCloseCase] = caseCommand(func(ctx context.Context, meta command.Meta, _ struct{}) (*casedomain.Case, error) {
			return cs.CloseCase(ctx, casetypes.CloseCaseInput{Meta: meta})
		})
		table[casetypes.CommandMarkSLABreached] = caseCommand(func(ctx context.Context, meta command.Meta, p casehttpmapper.MarkSLABreached) (*casedomain.Case, error) {
			return cs.MarkSLABreached(ctx, casetypes.MarkSLABreachedInput{Meta: meta, Kind: p.Kind})
		})
	}
	return table
}

func workItemCommand[P any](run func(context.Context, command.Meta, P) (*widomain.WorkItem, error)) commandHandler {
	return func(ctx context.Context, meta command.Meta, raw json.RawMessage) (CommandResponse, error) {
		var payload P
		if err := decodePayload(raw, &payload); err != nil {
			return CommandResponse{}, err
		}
		item, err := run(ctx, meta, payload)
		if err != nil {
			return CommandResponse{}, err
		}
		out := wihttpmapper.FromWorkItem(item)
		return CommandResponse{WorkItem: &out}, nil
	}
}

func caseCommand[P any](run func(context.Context, command.Meta, P) (*casedomain.Case, error)) commandHandler {
	return func(ctx context.Context, meta command.Meta, raw json.RawMessage) (CommandResponse, error) {
		var payload P
		if err := decodePayload(raw, &payload); err != nil {
			return CommandResponse{}, err
		}
		c, err := run(ctx, meta, payload)
		if err != nil {
			return CommandResponse{}, err
		}
		out := casehttpmapper.FromCase(c)
		return CommandResponse{Case: &out}, nil
	}
}

// decodePayload treats a missing payload as empty and rejects malformed
// JSON as a validation failure.
func decodePayload(raw json.RawMessage, into any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, into); err != nil {
		return command.Reject("invalid payload: %s", err.Error())
	}
	return nil
}
