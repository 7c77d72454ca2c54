package projection

import "errors"

// Outcome describes what a projector did with one event.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeSkippedStale     Outcome = "skipped_stale"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeFailed           Outcome = "failed"
)

// ErrStaleWrite is returned by read model stores when a conditional write
// loses against a row that already holds the same or a newer sequence.
var ErrStaleWrite = errors.New("projection row already at or past sequence")

// AlreadyApplied reports whether an event at eventSequence has been folded
// into a row whose last sequence is lastSequence.
func AlreadyApplied(eventSequence, lastSequence int64) bool {
	return eventSequence <= lastSequence
}
