package domain

import (
	"errors"
	"fmt"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	resolution "github.com/Apurer/worktrack/internal/domains/resolution/domain"
)

var (
	// ErrNotInitialized is returned when a non-create event arrives for an
	// item that has no projection yet.
	ErrNotInitialized = errors.New("work item not initialized")
	ErrNotWorkItem    = errors.New("event is not a work item event")
)

// Apply folds evt into prev and returns the new state. prev is nil for an
// absent projection. The result uses only the event's own timestamp.
func Apply(prev *WorkItem, evt eventlog.Event) (*WorkItem, error) {
	payload, ok := evt.Data.(eventlog.WorkItemPayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWorkItem, evt.Type)
	}
	r := &reducer{evt: evt}
	if prev != nil {
		next := prev.Clone()
		r.item = &next
	}
	if err := payload.AcceptWorkItem(r); err != nil {
		return nil, err
	}
	r.item.UpdatedAt = evt.OccurredAt
	r.item.LastEventSequence = evt.AggregateSequence
	return r.item, nil
}

// Fold replays events in order starting from prev.
func Fold(prev *WorkItem, events []eventlog.Event) (*WorkItem, error) {
	state := prev
	for _, evt := range events {
		if state != nil && evt.AggregateSequence <= state.LastEventSequence {
			continue
		}
		next, err := Apply(state, evt)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

type reducer struct {
	item *WorkItem
	evt  eventlog.Event
}

func (r *reducer) require() error {
	if r.item == nil {
		return fmt.Errorf("%w: %s at sequence %d", ErrNotInitialized, r.evt.Type, r.evt.AggregateSequence)
	}
	return nil
}

func (r *reducer) WorkItemCreated(p eventlog.WorkItemCreated) error {
	score := DefaultScore(TierMedium)
	if p.Score != nil {
		score = *p.Score
	} else if tier, err := ParseTier(p.Priority); err == nil {
		score = DefaultScore(tier)
	}
	r.item = &WorkItem{
		ID:        r.evt.AggregateID,
		Title:     p.Title,
		Queue:     QueueKey{UserID: p.UserID, Lens: p.Lens, QueueID: p.QueueID},
		Score:     ClampScore(score),
		Status:    StatusOpen,
		CreatedAt: r.evt.OccurredAt,
	}
	return nil
}

func (r *reducer) WorkItemPriorityUpdated(p eventlog.WorkItemPriorityUpdated) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.Score = ClampScore(p.NewScore)
	return nil
}

func (r *reducer) WorkItemPriorityAdjusted(p eventlog.WorkItemPriorityAdjusted) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.Score = ClampScore(r.item.Score + p.Delta)
	return nil
}

func (r *reducer) WorkItemSignalAttached(p eventlog.WorkItemSignalAttached) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.Signals = append(r.item.Signals, Signal{
		ID:         p.SignalID,
		Type:       p.SignalType,
		Delta:      p.Delta,
		AttachedAt: r.evt.OccurredAt,
	})
	r.item.Score = ClampScore(r.item.Score + p.Delta)
	return nil
}

func (r *reducer) WorkItemAssigned(p eventlog.WorkItemAssigned) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.Queue = QueueKey{UserID: p.UserID, Lens: p.Lens, QueueID: p.QueueID}
	return nil
}

func (r *reducer) WorkItemSnoozed(p eventlog.WorkItemSnoozed) error {
	if err := r.require(); err != nil {
		return err
	}
	until := p.Until
	r.item.Status = StatusSnoozed
	r.item.SnoozedUntil = &until
	return nil
}

func (r *reducer) WorkItemMeetingUpdated(p eventlog.WorkItemMeetingUpdated) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.LastTrigger = p.Trigger
	if p.NotificationID != "" {
		r.item.NotificationIDs = append(r.item.NotificationIDs, p.NotificationID)
	}
	switch {
	case p.Trigger == resolution.TriggerMeetingCancelled:
		r.item.HasBookedMeeting = false
	case resolution.TriggerStrength(p.Trigger) >= resolution.StrengthMeetingBooked:
		r.item.HasBookedMeeting = true
		r.item.MeetingID = p.MeetingID
	}
	return nil
}

func (r *reducer) WorkItemResolved(p eventlog.WorkItemResolved) error {
	if err := r.require(); err != nil {
		return err
	}
	at := r.evt.OccurredAt
	r.item.Status = StatusResolved
	r.item.ResolvedAt = &at
	r.item.ResolutionReason = p.Reason
	r.item.ResolvedBy = p.ResolvedBy
	r.item.SnoozedUntil = nil
	return nil
}

func (r *reducer) WorkItemReopened(eventlog.WorkItemReopened) error {
	if err := r.require(); err != nil {
		return err
	}
	r.item.Status = StatusOpen
	r.item.ResolvedAt = nil
	r.item.ResolutionReason = ""
	r.item.ResolvedBy = ""
	r.item.SnoozedUntil = nil
	return nil
}
