package types

import (
	"time"

	"github.com/Apurer/worktrack/internal/shared/command"
)

// Command type names accepted by the work item handler.
const (
	CommandCreateWorkItem      = "CreateWorkItem"
	CommandUpdatePriority      = "UpdatePriority"
	CommandAdjustPriority      = "AdjustPriority"
	CommandAttachSignal        = "AttachSignal"
	CommandAssignWorkItem      = "AssignWorkItem"
	CommandSnoozeWorkItem      = "SnoozeWorkItem"
	CommandResolveWorkItem     = "ResolveWorkItem"
	CommandReopenWorkItem      = "ReopenWorkItem"
	CommandApplyMeetingTrigger = "ApplyMeetingTrigger"
)

// CreateWorkItemInput opens a new work item. Score wins over Priority.
type CreateWorkItemInput struct {
	command.Meta
	Title    string
	UserID   string
	Lens     string
	QueueID  string
	Priority string
	Score    *int
}

type UpdatePriorityInput struct {
	command.Meta
	NewScore int
	Reason   string
}

type AdjustPriorityInput struct {
	command.Meta
	Delta  int
	Reason string
}

type AttachSignalInput struct {
	command.Meta
	SignalID   string
	SignalType string
	Delta      int
}

type AssignWorkItemInput struct {
	command.Meta
	UserID  string
	Lens    string
	QueueID string
}

type SnoozeWorkItemInput struct {
	command.Meta
	Until time.Time
}

type ResolveWorkItemInput struct {
	command.Meta
	Reason string
}

type ReopenWorkItemInput struct {
	command.Meta
	Reason string
}

// ApplyMeetingTriggerInput records a calendar trigger and lets the
// resolution rules decide whether the item resolves or reopens. A
// NotificationID already applied to the item is refused.
type ApplyMeetingTriggerInput struct {
	command.Meta
	MeetingID      string
	Trigger        string
	NotificationID string
}
