package mapper

import (
	"time"

	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// Signal is the HTTP representation of an attached signal.
type Signal struct {
	ID         string    `json:"signal_id"`
	Type       string    `json:"signal_type"`
	Delta      int       `json:"delta"`
	AttachedAt time.Time `json:"attached_at"`
}

// WorkItem is the HTTP representation of the work item projection.
type WorkItem struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	UserID            string     `json:"user_id"`
	Lens              string     `json:"lens"`
	QueueID           string     `json:"queue_id"`
	Score             int        `json:"score"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	Signals           []Signal   `json:"signals"`
	SnoozedUntil      *time.Time `json:"snoozed_until,omitempty"`
	MeetingID         string     `json:"meeting_id,omitempty"`
	HasBookedMeeting  bool       `json:"has_booked_meeting"`
	LastTrigger       string     `json:"last_trigger,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolutionReason  string     `json:"resolution_reason,omitempty"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastEventSequence int64      `json:"last_event_sequence"`
}

// TierCounts counts open items per tier.
type TierCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Queue is the HTTP representation of a queue summary.
type Queue struct {
	UserID             string     `json:"user_id"`
	Lens               string     `json:"lens"`
	QueueID            string     `json:"queue_id"`
	Counts             TierCounts `json:"counts"`
	OpenCount          int        `json:"open_count"`
	SnoozedCount       int        `json:"snoozed_count"`
	TopScore           int        `json:"top_score"`
	ItemIDs            []string   `json:"item_ids"`
	LastGlobalSequence int64      `json:"last_global_sequence"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FromWorkItem maps the projection into its transport shape.
func FromWorkItem(item *domain.WorkItem) WorkItem {
	if item == nil {
		return WorkItem{}
	}
	out := WorkItem{
		ID:                item.ID,
		Title:             item.Title,
		UserID:            item.Queue.UserID,
		Lens:              item.Queue.Lens,
		QueueID:           item.Queue.QueueID,
		Score:             item.Score,
		Priority:          string(item.Priority()),
		Status:            string(item.Status),
		Signals:           make([]Signal, 0, len(item.Signals)),
		SnoozedUntil:      item.SnoozedUntil,
		MeetingID:         item.MeetingID,
		HasBookedMeeting:  item.HasBookedMeeting,
		LastTrigger:       item.LastTrigger,
		ResolvedAt:        item.ResolvedAt,
		ResolutionReason:  item.ResolutionReason,
		ResolvedBy:        item.ResolvedBy,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
		LastEventSequence: item.LastEventSequence,
	}
	for _, s := range item.Signals {
		out.Signals = append(out.Signals, Signal{ID: s.ID, Type: s.Type, Delta: s.Delta, AttachedAt: s.AttachedAt})
	}
	return out
}

// FromQueue maps a queue summary into its transport shape.
func FromQueue(q *domain.QueueSummary) Queue {
	if q == nil {
		return Queue{}
	}
	ids := append([]string{}, q.ItemIDs...)
	return Queue{
		UserID:  q.Key.UserID,
		Lens:    q.Key.Lens,
		QueueID: q.Key.QueueID,
		Counts: TierCounts{
			Critical: q.Counts.Critical,
			High:     q.Counts.High,
			Medium:   q.Counts.Medium,
			Low:      q.Counts.Low,
		},
		OpenCount:          q.OpenCount,
		SnoozedCount:       q.SnoozedCount,
		TopScore:           q.TopScore,
		ItemIDs:            ids,
		LastGlobalSequence: q.LastGlobalSequence,
		UpdatedAt:          q.UpdatedAt,
	}
}

// CreateWorkItem is the payload of CreateWorkItem. Score wins over Priority.
type CreateWorkItem struct {
	Title    string `json:"title"`
	UserID   string `json:"user_id"`
	Lens     string `json:"lens"`
	QueueID  string `json:"queue_id"`
	Priority string `json:"priority"`
	Score    *int   `json:"score"`
}

func (p CreateWorkItem) Input(meta command.Meta) types.CreateWorkItemInput {
	return types.CreateWorkItemInput{
		Meta:     meta,
		Title:    p.Title,
		UserID:   p.UserID,
		Lens:     p.Lens,
		QueueID:  p.QueueID,
		Priority: p.Priority,
		Score:    p.Score,
	}
}

type UpdatePriority struct {
	NewScore *int   `json:"new_score"`
	Reason   string `json:"reason"`
}

func (p UpdatePriority) Input(meta command.Meta) (types.UpdatePriorityInput, error) {
	if p.NewScore == nil {
		return types.UpdatePriorityInput{}, command.Reject("new_score is required")
	}
	return types.UpdatePriorityInput{Meta: meta, NewScore: *p.NewScore, Reason: p.Reason}, nil
}

type AdjustPriority struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (p AdjustPriority) Input(meta command.Meta) types.AdjustPriorityInput {
	return types.AdjustPriorityInput{Meta: meta, Delta: p.Delta, Reason: p.Reason}
}

type AttachSignal struct {
	SignalID   string `json:"signal_id"`
	SignalType string `json:"signal_type"`
	Delta      int    `json:"delta"`
}

func (p AttachSignal) Input(meta command.Meta) types.AttachSignalInput {
	return types.AttachSignalInput{Meta: meta, SignalID: p.SignalID, SignalType: p.SignalType, Delta: p.Delta}
}

type AssignWorkItem struct {
	UserID  string `json:"user_id"`
	Lens    string `json:"lens"`
	QueueID string `json:"queue_id"`
}

func (p AssignWorkItem) Input(meta command.Meta) types.AssignWorkItemInput {
	return types.AssignWorkItemInput{Meta: meta, UserID: p.UserID, Lens: p.Lens, QueueID: p.QueueID}
}

type SnoozeWorkItem struct {
	Until *time.Time `json:"until"`
}

func (p SnoozeWorkItem) Input(meta command.Meta) (types.SnoozeWorkItemInput, error) {
	if p.Until == nil {
		return types.SnoozeWorkItemInput{}, command.Reject("until is required")
	}
	return types.SnoozeWorkItemInput{Meta: meta, Until: p.Until.UTC()}, nil
}

// Reason is the payload of ResolveWorkItem and ReopenWorkItem.
type Reason struct {
	Reason string `json:"reason"`
}

type ApplyMeetingTrigger struct {
	MeetingID      string `json:"meeting_id"`
	Trigger        string `json:"trigger"`
	NotificationID string `json:"notification_id,omitempty"`
}

func (p ApplyMeetingTrigger) Input(meta command.Meta) types.ApplyMeetingTriggerInput {
	return types.ApplyMeetingTriggerInput{Meta: meta, MeetingID: p.MeetingID, Trigger: p.Trigger, NotificationID: p.NotificationID}
}
