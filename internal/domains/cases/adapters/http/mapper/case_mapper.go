package mapper

import (
	"time"

	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// SLA is the HTTP representation of a case's deadlines and breach flags.
type SLA struct {
	FirstResponseDueAt    time.Time `json:"first_response_due_at"`
	ResolutionDueAt       time.Time `json:"resolution_due_at"`
	FirstResponseBreached bool      `json:"first_response_breached"`
	ResolutionBreached    bool      `json:"resolution_breached"`
}

// Case is the HTTP representation of the support case projection.
type Case struct {
	ID                  string     `json:"id"`
	Subject             string     `json:"subject"`
	CustomerID          string     `json:"customer_id"`
	Severity            string     `json:"severity"`
	Category            string     `json:"category,omitempty"`
	Status              string     `json:"status"`
	OpenedAt            time.Time  `json:"opened_at"`
	FirstRespondedAt    *time.Time `json:"first_responded_at,omitempty"`
	ResponderID         string     `json:"responder_id,omitempty"`
	LastCustomerReplyAt *time.Time `json:"last_customer_reply_at,omitempty"`
	ReplyCount          int        `json:"reply_count"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	Resolution          string     `json:"resolution,omitempty"`
	ReopenCount         int        `json:"reopen_count"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	SLA                 SLA        `json:"sla"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastEventSequence   int64      `json:"last_event_sequence"`
}

// FromCase maps the projection into its transport shape.
func FromCase(c *domain.Case) Case {
	if c == nil {
		return Case{}
	}
	return Case{
		ID:                  c.ID,
		Subject:             c.Subject,
		CustomerID:          c.CustomerID,
		Severity:            string(c.Severity),
		Category:            c.Category,
		Status:              string(c.Status),
		OpenedAt:            c.OpenedAt,
		FirstRespondedAt:    c.FirstRespondedAt,
		ResponderID:         c.ResponderID,
		LastCustomerReplyAt: c.LastCustomerReplyAt,
		ReplyCount:          c.ReplyCount,
		ResolvedAt:          c.ResolvedAt,
		Resolution:          c.Resolution,
		ReopenCount:         c.ReopenCount,
		ClosedAt:            c.ClosedAt,
		SLA: SLA{
			FirstResponseDueAt:    c.Deadlines.FirstResponseDueAt,
			ResolutionDueAt:       c.Deadlines.ResolutionDueAt,
			FirstResponseBreached: c.Breaches.FirstResponseBreached,
			ResolutionBreached:    c.Breaches.ResolutionBreached,
		},
		UpdatedAt:         c.UpdatedAt,
		LastEventSequence: c.LastEventSequence,
	}
}

type OpenCase struct {
	Subject    string `json:"subject"`
	CustomerID string `json:"customer_id"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
}

func (p OpenCase) Input(meta command.Meta) types.OpenCaseInput {
	return types.OpenCaseInput{Meta: meta, Subject: p.Subject, CustomerID: p.CustomerID, Severity: p.Severity, Category: p.Category}
}

type RecordFirstResponse struct {
	ResponderID string `json:"responder_id"`
}

type ChangeSeverity struct {
	Severity string `json:"severity"`
}

type RecordCustomerReply struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
}

func (p RecordCustomerReply) Input(meta command.Meta) types.RecordCustomerReplyInput {
	return types.RecordCustomerReplyInput{Meta: meta, MessageID: p.MessageID, From: p.From}
}

type ResolveCase struct {
	Resolution string `json:"resolution"`
}

type ReopenCase struct {
	Reason string `json:"reason"`
}

type MarkSLABreached struct {
	Kind string `json:"kind"`
}

// InboundEmail is the inbound mail webhook body.
type InboundEmail struct {
	MessageID  string     `json:"message_id"`
	CaseID     string     `json:"case_id"`
	From       string     `json:"from"`
	ReceivedAt *time.Time `json:"received_at"`
}
