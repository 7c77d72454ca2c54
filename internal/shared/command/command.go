// Package command holds what every command handler shares: the metadata
// that travels with a command and the typed rejection it may return.
package command

import (
	"errors"
	"fmt"
	"time"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
)

// MaxAttempts bounds automatic retries on a concurrency conflict when the
// caller did not pin an expected sequence.
const MaxAttempts = 3

// Rejection codes returned to callers.
const (
	CodeValidationRejected  = "validation_rejected"
	CodeConcurrencyConflict = "concurrency_conflict"
	CodeUnknownCommand      = "unknown_command"
	CodeNotFound            = "not_found"
)

// ErrValidationRejected marks a failed domain precondition. It is not retryable.
var ErrValidationRejected = errors.New("validation rejected")

// ErrUnknownCommand is returned for an unrecognized command type.
var ErrUnknownCommand = errors.New("unknown command")

// Rejection is a precondition failure surfaced to the caller verbatim.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Unwrap lets errors.Is match ErrValidationRejected.
func (r *Rejection) Unwrap() error {
	return ErrValidationRejected
}

// Reject builds a validation rejection.
func Reject(format string, args ...any) *Rejection {
	return &Rejection{Code: CodeValidationRejected, Message: fmt.Sprintf(format, args...)}
}

// Meta travels with every command.
type Meta struct {
	AggregateID string
	// ExpectedSequence pins the aggregate version the caller last saw.
	ExpectedSequence *int64
	Actor            eventlog.Actor
	// OccurredAt defaults to the handler clock when zero.
	OccurredAt time.Time
}

// Attempts returns how many times a handler may try the append.
func (m Meta) Attempts() int {
	if m.ExpectedSequence != nil {
		return 1
	}
	return MaxAttempts
}

// Validate checks the fields every command needs.
func (m Meta) Validate() error {
	if m.AggregateID == "" {
		return Reject("aggregate_id is required")
	}
	if !m.Actor.Valid() {
		return Reject("actor type must be system, user or ai")
	}
	return nil
}
