package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	casetypes "github.com/Apurer/worktrack/internal/domains/cases/application/types"
	casedomain "github.com/Apurer/worktrack/internal/domains/cases/domain"
	caseports "github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// InboundActorID identifies events appended from inbound email.
const InboundActorID = "inbound-email"

// ErrDuplicateMessage is returned when the same inbound message arrives twice.
var ErrDuplicateMessage = caseports.ErrDuplicateMessage

// InboundEmail is one parsed inbound customer message.
type InboundEmail struct {
	MessageID  string
	CaseID     string
	From       string
	ReceivedAt time.Time
}

// Inbound records inbound customer email on the matching case.
type Inbound struct {
	claims  ports.ClaimStore
	replies ports.CustomerReplies
}

func NewInbound(claims ports.ClaimStore, replies ports.CustomerReplies) *Inbound {
	return &Inbound{claims: claims, replies: replies}
}

// Handle appends CustomerReplied once per message id. The case refuses a
// message id it already recorded; the claim only marks the delivery in
// flight. The auto-ack runs inside RecordCustomerReply.
func (h *Inbound) Handle(ctx context.Context, msg InboundEmail) (*casedomain.Case, error) {
	if msg.MessageID == "" || msg.CaseID == "" {
		return nil, command.Reject("message_id and case_id are required")
	}
	claimKey := "inbound:" + msg.MessageID
	claimed, err := h.claims.Claim(ctx, msg.CaseID, claimKey)
	if err != nil {
		return nil, fmt.Errorf("claim inbound message: %w", err)
	}
	c, err := h.replies.RecordCustomerReply(ctx, casetypes.RecordCustomerReplyInput{
		Meta: command.Meta{
			AggregateID: msg.CaseID,
			Actor:       eventlog.SystemActor(InboundActorID),
			OccurredAt:  msg.ReceivedAt,
		},
		MessageID: msg.MessageID,
		From:      msg.From,
	})
	switch {
	case err == nil, !claimed:
	case errors.Is(err, caseports.ErrDuplicateMessage),
		errors.Is(err, command.ErrValidationRejected),
		errors.Is(err, caseports.ErrNotFound):
	default:
		if rerr := h.claims.Release(context.WithoutCancel(ctx), msg.CaseID, claimKey); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	return c, err
}
