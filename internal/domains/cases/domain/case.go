// Package domain holds the support case projection and its reducer.
package domain

import (
	"time"

	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
)

// Status is the lifecycle state of a support case.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

// Case is the support case read model. MessageIDs lists every recorded
// inbound message id in arrival order.
type Case struct {
	ID         string
	Subject    string
	CustomerID string
	Severity   sla.Severity
	Category   string
	Status     Status

	OpenedAt            time.Time
	FirstRespondedAt    *time.Time
	ResponderID         string
	LastCustomerReplyAt *time.Time
	LastMessageID       string
	MessageIDs          []string
	ReplyCount          int
	ResolvedAt          *time.Time
	Resolution          string
	ReopenCount         int
	ClosedAt            *time.Time

	// ResolutionClockStart is OpenedAt, or the last reopen time.
	ResolutionClockStart time.Time
	Deadlines            sla.Deadlines
	Breaches             sla.Flags

	UpdatedAt         time.Time
	LastEventSequence int64
}

// Facts reports which SLA clocks have stopped.
func (c Case) Facts() sla.Facts {
	return sla.Facts{
		FirstResponded: c.FirstRespondedAt != nil,
		Resolved:       c.Status != StatusOpen,
	}
}

// DueBreaches lists the breach kinds that have passed at now and are not
// yet flagged, with the deadline each one missed.
func (c Case) DueBreaches(now time.Time) map[string]time.Time {
	next := sla.Breaches(c.Breaches, c.Deadlines, c.Facts(), now)
	due := map[string]time.Time{}
	for _, kind := range sla.Pending(c.Breaches, next) {
		switch kind {
		case sla.KindFirstResponse:
			due[kind] = c.Deadlines.FirstResponseDueAt
		case sla.KindResolution:
			due[kind] = c.Deadlines.ResolutionDueAt
		}
	}
	return due
}

// HasMessage reports whether an inbound message id is already recorded.
func (c Case) HasMessage(id string) bool {
	for _, m := range c.MessageIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c Case) Clone() Case {
	out := c
	out.MessageIDs = append([]string(nil), c.MessageIDs...)
	out.FirstRespondedAt = cloneTime(c.FirstRespondedAt)
	out.LastCustomerReplyAt = cloneTime(c.LastCustomerReplyAt)
	out.ResolvedAt = cloneTime(c.ResolvedAt)
	out.ClosedAt = cloneTime(c.ClosedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
