package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed set of event bodies. Every payload belongs to
// exactly one aggregate union (WorkItemPayload or CasePayload).
type Payload interface {
	EventType() EventType
	AggregateType() AggregateType
}

// WorkItemVisitor must handle every work item payload. Adding a payload to
// the union adds a method here, so reducers stop compiling until they
// handle it.
type WorkItemVisitor interface {
	WorkItemCreated(WorkItemCreated) error
	WorkItemPriorityUpdated(WorkItemPriorityUpdated) error
	WorkItemPriorityAdjusted(WorkItemPriorityAdjusted) error
	WorkItemSignalAttached(WorkItemSignalAttached) error
	WorkItemAssigned(WorkItemAssigned) error
	WorkItemSnoozed(WorkItemSnoozed) error
	WorkItemMeetingUpdated(WorkItemMeetingUpdated) error
	WorkItemResolved(WorkItemResolved) error
	WorkItemReopened(WorkItemReopened) error
}

// WorkItemPayload is implemented by every work item event body.
type WorkItemPayload interface {
	Payload
	AcceptWorkItem(WorkItemVisitor) error
}

// CaseVisitor must handle every support case payload.
type CaseVisitor interface {
	CaseOpened(CaseOpened) error
	CaseFirstResponded(CaseFirstResponded) error
	CaseSeverityChanged(CaseSeverityChanged) error
	CaseCustomerReplied(CaseCustomerReplied) error
	CaseSLABreached(CaseSLABreached) error
	CaseResolved(CaseResolved) error
	CaseReopened(CaseReopened) error
	CaseClosed(CaseClosed) error
}

// CasePayload is implemented by every support case event body.
type CasePayload interface {
	Payload
	AcceptCase(CaseVisitor) error
}

// Work item event types.
const (
	TypeWorkItemCreated          EventType = "WorkItemCreated"
	TypeWorkItemPriorityUpdated  EventType = "WorkItemPriorityUpdated"
	TypeWorkItemPriorityAdjusted EventType = "WorkItemPriorityAdjusted"
	TypeWorkItemSignalAttached   EventType = "WorkItemSignalAttached"
	TypeWorkItemAssigned         EventType = "WorkItemAssigned"
	TypeWorkItemSnoozed          EventType = "WorkItemSnoozed"
	TypeWorkItemMeetingUpdated   EventType = "WorkItemMeetingUpdated"
	TypeWorkItemResolved         EventType = "WorkItemResolved"
	TypeWorkItemReopened         EventType = "WorkItemReopened"
)

// Support case event types.
const (
	TypeCaseOpened          EventType = "CaseOpened"
	TypeCaseFirstResponded  EventType = "CaseFirstResponded"
	TypeCaseSeverityChanged EventType = "CaseSeverityChanged"
	TypeCaseCustomerReplied EventType = "CaseCustomerReplied"
	TypeCaseSLABreached     EventType = "CaseSLABreached"
	TypeCaseResolved        EventType = "CaseResolved"
	TypeCaseReopened        EventType = "CaseReopened"
	TypeCaseClosed          EventType = "CaseClosed"
)

// WorkItemCreated opens a work item. Score is optional; when nil the
// score is derived from Priority.
type WorkItemCreated struct {
	Title    string `json:"title"`
	UserID   string `json:"userId"`
	Lens     string `json:"lens"`
	QueueID  string `json:"queueId"`
	Priority string `json:"priority,omitempty"`
	Score    *int   `json:"score,omitempty"`
}

// WorkItemPriorityUpdated replaces the score.
type WorkItemPriorityUpdated struct {
	NewScore int    `json:"newScore"`
	Reason   string `json:"reason,omitempty"`
}

// WorkItemPriorityAdjusted adds a delta to the score.
type WorkItemPriorityAdjusted struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// WorkItemSignalAttached links an external signal that also moves the score.
type WorkItemSignalAttached struct {
	SignalID   string `json:"signalId"`
	SignalType string `json:"signalType"`
	Delta      int    `json:"delta"`
}

// WorkItemAssigned moves the item to another owner or queue.
type WorkItemAssigned struct {
	UserID  string `json:"userId"`
	Lens    string `json:"lens"`
	QueueID string `json:"queueId"`
}

// WorkItemSnoozed hides the item from the active queue until a time.
type WorkItemSnoozed struct {
	Until time.Time `json:"until"`
}

// WorkItemMeetingUpdated records a scheduling trigger observed for the item.
// NotificationID is set when the trigger came from a calendar webhook.
type WorkItemMeetingUpdated struct {
	MeetingID      string `json:"meetingId"`
	Trigger        string `json:"trigger"`
	NotificationID string `json:"notificationId,omitempty"`
}

// WorkItemResolved closes the item. ResolvedBy records the signal that
// caused an automatic resolution, empty for manual ones.
type WorkItemResolved struct {
	Reason     string `json:"reason"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
}

// WorkItemReopened returns a resolved item to the open state.
type WorkItemReopened struct {
	Reason string `json:"reason"`
}

// CaseOpened starts a support case.
type CaseOpened struct {
	Subject    string `json:"subject"`
	CustomerID string `json:"customerId"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
}

// CaseFirstResponded marks the first agent response.
type CaseFirstResponded struct {
	ResponderID string `json:"responderId"`
}

// CaseSeverityChanged reclassifies a case and moves its deadlines.
type CaseSeverityChanged struct {
	Severity string `json:"severity"`
}

// CaseCustomerReplied records an inbound customer message.
type CaseCustomerReplied struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
}

// SLA breach kinds.
const (
	BreachFirstResponse = "first_response"
	BreachResolution    = "resolution"
)

// CaseSLABreached is appended by the sweep once a deadline passes.
type CaseSLABreached struct {
	Kind  string    `json:"kind"`
	DueAt time.Time `json:"dueAt"`
}

// CaseResolved marks a case resolved.
type CaseResolved struct {
	Resolution string `json:"resolution"`
}

// CaseReopened reopens a resolved case.
type CaseReopened struct {
	Reason string `json:"reason"`
}

// CaseClosed is terminal for business purposes; projections keep listening.
type CaseClosed struct{}

func (WorkItemCreated) EventType() EventType          { return TypeWorkItemCreated }
func (WorkItemPriorityUpdated) EventType() EventType  { return TypeWorkItemPriorityUpdated }
func (WorkItemPriorityAdjusted) EventType() EventType { return TypeWorkItemPriorityAdjusted }
func (WorkItemSignalAttached) EventType() EventType   { return TypeWorkItemSignalAttached }
func (WorkItemAssigned) EventType() EventType         { return TypeWorkItemAssigned }
func (WorkItemSnoozed) EventType() EventType          { return TypeWorkItemSnoozed }
func (WorkItemMeetingUpdated) EventType() EventType   { return TypeWorkItemMeetingUpdated }
func (WorkItemResolved) EventType() EventType         { return TypeWorkItemResolved }
func (WorkItemReopened) EventType() EventType         { return TypeWorkItemReopened }

func (WorkItemCreated) AggregateType() AggregateType          { return AggregateWorkItem }
func (WorkItemPriorityUpdated) AggregateType() AggregateType  { return AggregateWorkItem }
func (WorkItemPriorityAdjusted) AggregateType() AggregateType { return AggregateWorkItem }
func (WorkItemSignalAttached) AggregateType() AggregateType   { return AggregateWorkItem }
func (WorkItemAssigned) AggregateType() AggregateType         { return AggregateWorkItem }
func (WorkItemSnoozed) AggregateType() AggregateType          { return AggregateWorkItem }
func (WorkItemMeetingUpdated) AggregateType() AggregateType   { return AggregateWorkItem }
func (WorkItemResolved) AggregateType() AggregateType         { return AggregateWorkItem }
func (WorkItemReopened) AggregateType() AggregateType         { return AggregateWorkItem }

func (p WorkItemCreated) AcceptWorkItem(v WorkItemVisitor) error { return v.WorkItemCreated(p) }
func (p WorkItemPriorityUpdated) AcceptWorkItem(v WorkItemVisitor) error {
	return v.WorkItemPriorityUpdated(p)
}
func (p WorkItemPriorityAdjusted) AcceptWorkItem(v WorkItemVisitor) error {
	return v.WorkItemPriorityAdjusted(p)
}
func (p WorkItemSignalAttached) AcceptWorkItem(v WorkItemVisitor) error {
	return v.WorkItemSignalAttached(p)
}
func (p WorkItemAssigned) AcceptWorkItem(v WorkItemVisitor) error { return v.WorkItemAssigned(p) }
func (p WorkItemSnoozed) AcceptWorkItem(v WorkItemVisitor) error  { return v.WorkItemSnoozed(p) }
func (p WorkItemMeetingUpdated) AcceptWorkItem(v WorkItemVisitor) error {
	return v.WorkItemMeetingUpdated(p)
}
func (p WorkItemResolved) AcceptWorkItem(v WorkItemVisitor) error { return v.WorkItemResolved(p) }
func (p WorkItemReopened) AcceptWorkItem(v WorkItemVisitor) error { return v.WorkItemReopened(p) }

func (CaseOpened) EventType() EventType          { return TypeCaseOpened }
func (CaseFirstResponded) EventType() EventType  { return TypeCaseFirstResponded }
func (CaseSeverityChanged) EventType() EventType { return TypeCaseSeverityChanged }
func (CaseCustomerReplied) EventType() EventType { return TypeCaseCustomerReplied }
func (CaseSLABreached) EventType() EventType     { return TypeCaseSLABreached }
func (CaseResolved) EventType() EventType        { return TypeCaseResolved }
func (CaseReopened) EventType() EventType        { return TypeCaseReopened }
func (CaseClosed) EventType() EventType          { return TypeCaseClosed }

func (CaseOpened) AggregateType() AggregateType          { return AggregateCase }
func (CaseFirstResponded) AggregateType() AggregateType  { return AggregateCase }
func (CaseSeverityChanged) AggregateType() AggregateType { return AggregateCase }
func (CaseCustomerReplied) AggregateType() AggregateType { return AggregateCase }
func (CaseSLABreached) AggregateType() AggregateType     { return AggregateCase }
func (CaseResolved) AggregateType() AggregateType        { return AggregateCase }
func (CaseReopened) AggregateType() AggregateType        { return AggregateCase }
func (CaseClosed) AggregateType() AggregateType          { return AggregateCase }

func (p CaseOpened) AcceptCase(v CaseVisitor) error          { return v.CaseOpened(p) }
func (p CaseFirstResponded) AcceptCase(v CaseVisitor) error  { return v.CaseFirstResponded(p) }
func (p CaseSeverityChanged) AcceptCase(v CaseVisitor) error { return v.CaseSeverityChanged(p) }
func (p CaseCustomerReplied) AcceptCase(v CaseVisitor) error { return v.CaseCustomerReplied(p) }
func (p CaseSLABreached) AcceptCase(v CaseVisitor) error     { return v.CaseSLABreached(p) }
func (p CaseResolved) AcceptCase(v CaseVisitor) error        { return v.CaseResolved(p) }
func (p CaseReopened) AcceptCase(v CaseVisitor) error        { return v.CaseReopened(p) }
func (p CaseClosed) AcceptCase(v CaseVisitor) error          { return v.CaseClosed(p) }

// EncodePayload serializes a payload body for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	return json.Marshal(p)
}

// DecodePayload restores a payload from its stored type and body.
func DecodePayload(eventType EventType, data []byte) (Payload, error) {
	switch eventType {
	case TypeWorkItemCreated:
		return decode[WorkItemCreated](eventType, data)
	case TypeWorkItemPriorityUpdated:
		return decode[WorkItemPriorityUpdated](eventType, data)
	case TypeWorkItemPriorityAdjusted:
		return decode[WorkItemPriorityAdjusted](eventType, data)
	case TypeWorkItemSignalAttached:
		return decode[WorkItemSignalAttached](eventType, data)
	case TypeWorkItemAssigned:
		return decode[WorkItemAssigned](eventType, data)
	case TypeWorkItemSnoozed:
		return decode[WorkItemSnoozed](eventType, data)
	case TypeWorkItemMeetingUpdated:
		return decode[WorkItemMeetingUpdated](eventType, data)
	case TypeWorkItemResolved:
		return decode[WorkItemResolved](eventType, data)
	case TypeWorkItemReopened:
		return decode[WorkItemReopened](eventType, data)
	case TypeCaseOpened:
		return decode[CaseOpened](eventType, data)
	case TypeCaseFirstResponded:
		return decode[CaseFirstResponded](eventType, data)
	case TypeCaseSeverityChanged:
		return decode[CaseSeverityChanged](eventType, data)
	case TypeCaseCustomerReplied:
		return decode[CaseCustomerReplied](eventType, data)
	case TypeCaseSLABreached:
		return decode[CaseSLABreached](eventType, data)
	case TypeCaseResolved:
		return decode[CaseResolved](eventType, data)
	case TypeCaseReopened:
		return decode[CaseReopened](eventType, data)
	case TypeCaseClosed:
		return decode[CaseClosed](eventType, data)
	default:
		return nil, fmt.Errorf("decode payload: unknown event type %q", eventType)
	}
}

func decode[T Payload](eventType EventType, data []byte) (Payload, error) {
	var body T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
	}
	return body, nil
}
