// Package domain models outbound side effects triggered by webhooks.
package domain

import "time"

// Kind names an automated side effect.
type Kind string

// KindAutoAck is the acknowledgement sent for an inbound customer reply.
const KindAutoAck Kind = "auto_ack"

// Status tracks a side effect through delivery.
type Status string

const (
	StatusSent     Status = "sent"
	StatusDeferred Status = "deferred"
	StatusFailed   Status = "failed"
)

// MaxAttempts bounds delivery retries of a deferred side effect.
const MaxAttempts = 5

// SideEffect is one automated action taken, or scheduled, for an aggregate.
type SideEffect struct {
	ID                string
	AggregateID       string
	Kind              Kind
	ExternalMessageID string
	Recipient         string
	Subject           string
	Status            Status
	ScheduledAt       time.Time
	SentAt            *time.Time
	Attempts          int
	LastError         string
	CreatedAt         time.Time
}

// NextAllowed returns when the next side effect of the same kind may run,
// given the last one sent.
func NextAllowed(last *SideEffect, window time.Duration) time.Time {
	if last == nil || last.SentAt == nil {
		return time.Time{}
	}
	return last.SentAt.Add(window)
}
