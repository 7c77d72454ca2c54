package domain

import (
	"errors"
	"fmt"
	"time"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
)

var (
	// ErrNotInitialized is returned when a non-open event arrives for a case
	// that has no projection yet.
	ErrNotInitialized = errors.New("case not initialized")
	ErrNotCase        = errors.New("event is not a support case event")
)

// Reducer folds case events under an SLA policy. The policy must be the
// same for live processing and rebuilds.
type Reducer struct {
	Policy sla.Policy
}

// NewReducer returns a reducer using policy.
func NewReducer(policy sla.Policy) Reducer {
	return Reducer{Policy: policy}
}

// Apply folds evt into prev. prev is nil for an absent projection.
func (r Reducer) Apply(prev *Case, evt eventlog.Event) (*Case, error) {
	payload, ok := evt.Data.(eventlog.CasePayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCase, evt.Type)
	}
	v := &visitor{policy: r.Policy, evt: evt}
	if prev != nil {
		next := prev.Clone()
		v.c = &next
	}
	if err := payload.AcceptCase(v); err != nil {
		return nil, err
	}
	v.c.UpdatedAt = evt.OccurredAt
	v.c.LastEventSequence = evt.AggregateSequence
	return v.c, nil
}

// Fold replays events in order starting from prev, skipping any already
// reflected in prev.
func (r Reducer) Fold(prev *Case, events []eventlog.Event) (*Case, error) {
	state := prev
	for _, evt := range events {
		if state != nil && evt.AggregateSequence <= state.LastEventSequence {
			continue
		}
		next, err := r.Apply(state, evt)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

type visitor struct {
	policy sla.Policy
	evt    eventlog.Event
	c      *Case
}

func (v *visitor) require() error {
	if v.c == nil {
		return fmt.Errorf("%w: %s at sequence %d", ErrNotInitialized, v.evt.Type, v.evt.AggregateSequence)
	}
	return nil
}

func (v *visitor) at() time.Time { return v.evt.OccurredAt }

func (v *visitor) CaseOpened(p eventlog.CaseOpened) error {
	severity, err := sla.ParseSeverity(p.Severity)
	if err != nil {
		return err
	}
	v.c = &Case{
		ID:                   v.evt.AggregateID,
		Subject:              p.Subject,
		CustomerID:           p.CustomerID,
		Severity:             severity,
		Category:             p.Category,
		Status:               StatusOpen,
		OpenedAt:             v.at(),
		ResolutionClockStart: v.at(),
	}
	deadlines, err := sla.Evaluate(v.policy, v.at(), severity, p.Category)
	if err != nil {
		return err
	}
	v.c.Deadlines = deadlines
	return nil
}

func (v *visitor) CaseFirstResponded(p eventlog.CaseFirstResponded) error {
	if err := v.require(); err != nil {
		return err
	}
	at := v.at()
	v.c.FirstRespondedAt = &at
	v.c.ResponderID = p.ResponderID
	v.c.Breaches.FirstResponseBreached = false
	return nil
}

func (v *visitor) CaseSeverityChanged(p eventlog.CaseSeverityChanged) error {
	if err := v.require(); err != nil {
		return err
	}
	severity, err := sla.ParseSeverity(p.Severity)
	if err != nil {
		return err
	}
	v.c.Severity = severity
	return v.recompute()
}

func (v *visitor) CaseCustomerReplied(p eventlog.CaseCustomerReplied) error {
	if err := v.require(); err != nil {
		return err
	}
	at := v.at()
	v.c.LastCustomerReplyAt = &at
	v.c.LastMessageID = p.MessageID
	v.c.MessageIDs = append(v.c.MessageIDs, p.MessageID)
	v.c.ReplyCount++
	return nil
}

func (v *visitor) CaseSLABreached(p eventlog.CaseSLABreached) error {
	if err := v.require(); err != nil {
		return err
	}
	switch p.Kind {
	case eventlog.BreachFirstResponse:
		v.c.Breaches.FirstResponseBreached = true
	case eventlog.BreachResolution:
		v.c.Breaches.ResolutionBreached = true
	default:
		return fmt.Errorf("unknown breach kind %q", p.Kind)
	}
	return nil
}

func (v *visitor) CaseResolved(p eventlog.CaseResolved) error {
	if err := v.require(); err != nil {
		return err
	}
	at := v.at()
	v.c.Status = StatusResolved
	v.c.ResolvedAt = &at
	v.c.Resolution = p.Resolution
	return nil
}

func (v *visitor) CaseReopened(eventlog.CaseReopened) error {
	if err := v.require(); err != nil {
		return err
	}
	v.c.Status = StatusOpen
	v.c.ResolvedAt = nil
	v.c.Resolution = ""
	v.c.ReopenCount++
	v.c.ResolutionClockStart = v.at()
	v.c.Breaches.ResolutionBreached = false
	return v.recompute()
}

func (v *visitor) CaseClosed(eventlog.CaseClosed) error {
	if err := v.require(); err != nil {
		return err
	}
	at := v.at()
	v.c.Status = StatusClosed
	v.c.ClosedAt = &at
	return nil
}

// recompute derives both deadlines. The first response clock always runs
// from OpenedAt; the resolution clock restarts on reopen.
func (v *visitor) recompute() error {
	t, err := v.policy.TargetsFor(v.c.Severity, v.c.Category)
	if err != nil {
		return err
	}
	v.c.Deadlines = sla.Deadlines{
		FirstResponseDueAt: v.c.OpenedAt.Add(t.FirstResponse),
		ResolutionDueAt:    v.c.ResolutionClockStart.Add(t.Resolution),
	}
	return nil
}
