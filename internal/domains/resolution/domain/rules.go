// Package domain decides whether an external scheduling trigger resolves
// or reopens a work item. Everything here is pure and safe for concurrent use.
package domain

import (
	"fmt"
	"sort"
)

// Condition is the weakest trigger that satisfies a rule.
type Condition string

const (
	WhenSchedulingRequested Condition = "scheduling_requested"
	WhenMeetingBooked       Condition = "meeting_booked"
	WhenMeetingCompleted    Condition = "meeting_completed"
	WhenManual              Condition = "manual"
)

// Trigger event types observed from calendars and scheduling tools.
const (
	TriggerSchedulingRequested = "SchedulingRequested"
	TriggerMeetingBooked       = "MeetingBooked"
	TriggerMeetingCompleted    = "MeetingCompleted"
	TriggerMeetingCancelled    = "MeetingCancelled"
)

// Strength orders triggers: completion implies booking implies a request.
type Strength int

const (
	StrengthNone Strength = iota
	StrengthSchedulingRequested
	StrengthMeetingBooked
	StrengthMeetingCompleted
)

func (s Strength) String() string {
	switch s {
	case StrengthSchedulingRequested:
		return "scheduling_requested"
	case StrengthMeetingBooked:
		return "meeting_booked"
	case StrengthMeetingCompleted:
		return "meeting_completed"
	default:
		return "none"
	}
}

// TriggerStrength maps a trigger event type onto the order. Cancellations
// and unknown triggers have no strength.
func TriggerStrength(trigger string) Strength {
	switch trigger {
	case TriggerSchedulingRequested:
		return StrengthSchedulingRequested
	case TriggerMeetingBooked:
		return StrengthMeetingBooked
	case TriggerMeetingCompleted:
		return StrengthMeetingCompleted
	default:
		return StrengthNone
	}
}

// EffectiveStrength raises a positive trigger to at least MeetingBooked
// when the item already has a booked meeting.
func EffectiveStrength(trigger string, hasBookedMeeting bool) Strength {
	s := TriggerStrength(trigger)
	if s == StrengthNone {
		return s
	}
	if hasBookedMeeting && s < StrengthMeetingBooked {
		return StrengthMeetingBooked
	}
	return s
}

// Required returns the strength a condition needs. Manual rules need more
// than any trigger can provide, reported as ok=false.
func (c Condition) Required() (Strength, bool) {
	switch c {
	case WhenSchedulingRequested:
		return StrengthSchedulingRequested, true
	case WhenMeetingBooked:
		return StrengthMeetingBooked, true
	case WhenMeetingCompleted:
		return StrengthMeetingCompleted, true
	default:
		return StrengthNone, false
	}
}

// Rule is one row of the resolution table.
type Rule struct {
	SignalType     string
	ResolvesWhen   Condition
	ReopenOnCancel bool
}

// Decision is the outcome of Resolve.
type Decision struct {
	Resolves bool   `json:"resolves"`
	Reason   string `json:"reason"`
}

// ReopenDecision is the outcome of ShouldReopenOnCancel.
type ReopenDecision struct {
	ShouldReopen bool   `json:"shouldReopen"`
	Reason       string `json:"reason"`
}

var rules = map[string]Rule{
	"meeting_scheduled":    {SignalType: "meeting_scheduled", ResolvesWhen: WhenMeetingBooked, ReopenOnCancel: true},
	"demo_requested":       {SignalType: "demo_requested", ResolvesWhen: WhenMeetingBooked, ReopenOnCancel: true},
	"scheduling_link_sent": {SignalType: "scheduling_link_sent", ResolvesWhen: WhenSchedulingRequested},
	"follow_up_call":       {SignalType: "follow_up_call", ResolvesWhen: WhenSchedulingRequested, ReopenOnCancel: true},
	"meeting_follow_up":    {SignalType: "meeting_follow_up", ResolvesWhen: WhenMeetingCompleted},
	"contract_review":      {SignalType: "contract_review", ResolvesWhen: WhenManual},
	"manual_review":        {SignalType: "manual_review", ResolvesWhen: WhenManual},
}

// Lookup returns the rule for a signal type.
func Lookup(signalType string) (Rule, bool) {
	r, ok := rules[signalType]
	return r, ok
}

// Rules returns a copy of the table.
func Rules() []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalType < out[j].SignalType })
	return out
}

// Resolve reports whether triggerEventType resolves an item carrying a
// signal of signalType. It never fails; unknown inputs do not resolve.
func Resolve(signalType, triggerEventType string, hasBookedMeeting bool) Decision {
	rule, ok := rules[signalType]
	if !ok {
		return Decision{Resolves: false, Reason: fmt.Sprintf("no resolution rule for signal type %q", signalType)}
	}
	required, automatic := rule.ResolvesWhen.Required()
	if !automatic {
		return Decision{Resolves: false, Reason: fmt.Sprintf("signal type %q requires manual resolution", signalType)}
	}
	if triggerEventType == TriggerMeetingCancelled {
		return Decision{Resolves: false, Reason: "meeting cancellation never resolves"}
	}
	effective := EffectiveStrength(triggerEventType, hasBookedMeeting)
	if effective == StrengthNone {
		return Decision{Resolves: false, Reason: fmt.Sprintf("trigger %q is not a scheduling trigger", triggerEventType)}
	}
	if effective < required {
		return Decision{Resolves: false, Reason: fmt.Sprintf("trigger %s is weaker than required %s", effective, required)}
	}
	return Decision{Resolves: true, Reason: fmt.Sprintf("trigger %s satisfies %s", effective, rule.ResolvesWhen)}
}

// ShouldReopenOnCancel reports whether a cancelled meeting reopens an item
// resolved by a signal of signalType.
func ShouldReopenOnCancel(signalType string) ReopenDecision {
	rule, ok := rules[signalType]
	if !ok {
		return ReopenDecision{ShouldReopen: false, Reason: fmt.Sprintf("no resolution rule for signal type %q", signalType)}
	}
	if !rule.ReopenOnCancel {
		return ReopenDecision{ShouldReopen: false, Reason: fmt.Sprintf("signal type %q stays resolved on cancellation", signalType)}
	}
	return ReopenDecision{ShouldReopen: true, Reason: fmt.Sprintf("signal type %q reopens on cancellation", signalType)}
}
