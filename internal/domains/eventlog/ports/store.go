package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Apurer/worktrack/internal/domains/eventlog/domain"
)

// ErrConcurrencyConflict is returned when the expected aggregate sequence
// does not match the stored one. Callers reload and retry.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// AppendInput describes a batch of payloads appended to one aggregate.
type AppendInput struct {
	AggregateType domain.AggregateType
	AggregateID   string
	// ExpectedSequence is the optimistic concurrency token. Nil skips the check.
	ExpectedSequence *int64
	Actor            domain.Actor
	OccurredAt       time.Time
	Payloads         []domain.Payload
}

// Validate checks the input shape before any sequence is assigned.
func (in AppendInput) Validate() error {
	if in.AggregateID == "" {
		return domain.ErrEmptyAggregateID
	}
	if len(in.Payloads) == 0 {
		return domain.ErrNoPayloads
	}
	if !in.Actor.Valid() {
		return domain.ErrInvalidActor
	}
	for _, p := range in.Payloads {
		if p == nil || p.AggregateType() != in.AggregateType {
			return domain.ErrAggregateMismatch
		}
	}
	return nil
}

// EventStore is the append-only log. Sequence numbers assigned at append
// time never change.
type EventStore interface {
	Append(ctx context.Context, in AppendInput) ([]domain.Event, error)
	ReadAggregateStream(ctx context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error)
	ReadGlobalStream(ctx context.Context, fromGlobalSequence int64, limit int) ([]domain.Event, error)
	LatestGlobalSequence(ctx context.Context) (int64, error)
}

// AppendNotifier is signalled after a successful append so projector
// runners can wake up early. Notification is best effort.
type AppendNotifier interface {
	Notify(ctx context.Context, events []domain.Event)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, []domain.Event) {}
