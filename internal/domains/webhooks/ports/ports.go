package ports

import (
	"context"
	"time"

	casetypes "github.com/Apurer/worktrack/internal/domains/cases/application/types"
	casedomain "github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/domain"
	witypes "github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	widomain "github.com/Apurer/worktrack/internal/domains/workitems/domain"
)

// ClaimStore is a compare-and-swap on a durable claim keyed by
// (aggregateID, externalMessageID). Claim returns true for exactly one caller.
type ClaimStore interface {
	Claim(ctx context.Context, aggregateID, externalMessageID string) (bool, error)
	// Release drops a claim whose work failed before any external effect.
	Release(ctx context.Context, aggregateID, externalMessageID string) error
}

// SideEffectLog records automated actions for rate limiting and deferral.
type SideEffectLog interface {
	Append(ctx context.Context, effect domain.SideEffect) error
	Update(ctx context.Context, effect domain.SideEffect) error
	// LastSent returns the most recently sent effect of kind, or nil.
	LastSent(ctx context.Context, aggregateID string, kind domain.Kind) (*domain.SideEffect, error)
	// ListDue returns deferred effects scheduled at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SideEffect, error)
}

// Message is an outbound email.
type Message struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MeetingTriggers accepts calendar triggers for work items.
type MeetingTriggers interface {
	ApplyMeetingTrigger(ctx context.Context, in witypes.ApplyMeetingTriggerInput) (*widomain.WorkItem, error)
}

// CustomerReplies records inbound customer messages on cases.
type CustomerReplies interface {
	RecordCustomerReply(ctx context.Context, in casetypes.RecordCustomerReplyInput) (*casedomain.Case, error)
}
