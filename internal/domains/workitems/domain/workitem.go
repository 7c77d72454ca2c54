package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a work item.
type Status string

const (
	StatusOpen     Status = "open"
	StatusSnoozed  Status = "snoozed"
	StatusResolved Status = "resolved"
)

// Tier is always derived from the score.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

const (
	MinScore = 0
	MaxScore = 100
)

var ErrUnknownTier = errors.New("unknown priority tier")

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// TierForScore maps a score to its tier.
func TierForScore(score int) Tier {
	switch s := ClampScore(score); {
	case s >= 90:
		return TierCritical
	case s >= 70:
		return TierHigh
	case s >= 40:
		return TierMedium
	default:
		return TierLow
	}
}

// ParseTier validates a tier name.
func ParseTier(raw string) (Tier, error) {
	switch t := Tier(raw); t {
	case TierCritical, TierHigh, TierMedium, TierLow:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
}

// DefaultScore is used when an item is created with a tier but no score.
func DefaultScore(t Tier) int {
	switch t {
	case TierCritical:
		return 95
	case TierHigh:
		return 80
	case TierLow:
		return 20
	default:
		return 50
	}
}

// QueueKey is the composite key of a work queue.
type QueueKey struct {
	UserID  string
	Lens    string
	QueueID string
}

func (k QueueKey) String() string {
	return k.UserID + "/" + k.Lens + "/" + k.QueueID
}

// Signal is an external signal attached to a work item.
type Signal struct {
	ID         string
	Type       string
	Delta      int
	AttachedAt time.Time
}

// WorkItem is the detail projection of a work item aggregate.
// NotificationIDs lists the calendar notifications already applied.
type WorkItem struct {
	ID               string
	Title            string
	Queue            QueueKey
	Score            int
	Status           Status
	Signals          []Signal
	SnoozedUntil     *time.Time
	MeetingID        string
	HasBookedMeeting bool
	LastTrigger      string
	NotificationIDs  []string
	ResolvedAt       *time.Time
	ResolutionReason string
	ResolvedBy       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// LastEventSequence is the aggregate sequence of the last folded event.
	LastEventSequence int64
}

// Priority returns the tier for the current score.
func (w WorkItem) Priority() Tier {
	return TierForScore(w.Score)
}

// HasSignal reports whether a signal id is already attached.
func (w WorkItem) HasSignal(id string) bool {
	for _, s := range w.Signals {
		if s.ID == id {
			return true
		}
	}
	return false
}

// HasNotification reports whether a calendar notification was applied.
func (w WorkItem) HasNotification(id string) bool {
	for _, n := range w.NotificationIDs {
		if n == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so reducers never alias stored state.
func (w WorkItem) Clone() WorkItem {
	out := w
	out.Signals = append([]Signal(nil), w.Signals...)
	out.NotificationIDs = append([]string(nil), w.NotificationIDs...)
	if w.SnoozedUntil != nil {
		v := *w.SnoozedUntil
		out.SnoozedUntil = &v
	}
	if w.ResolvedAt != nil {
		v := *w.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}
