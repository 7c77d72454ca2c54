package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
	witypes "github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	wiports "github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// CalendarActorID identifies events appended from calendar notifications.
const CalendarActorID = "calendar-webhook"

// CalendarNotification is one change notification from a calendar provider.
type CalendarNotification struct {
	ID         string
	WorkItemID string
	MeetingID  string
	EventType  string
	OccurredAt time.Time
}

// CalendarResult summarizes a delivery.
type CalendarResult struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Calendar maps calendar notifications to ApplyMeetingTrigger commands.
// Each notification id is claimed before the command runs. The work item
// refuses a notification id it already applied, so a claim left behind by
// a crash between claim and append never hides the redelivery.
type Calendar struct {
	claims   ports.ClaimStore
	triggers ports.MeetingTriggers
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewCalendar(claims ports.ClaimStore, triggers ports.MeetingTriggers, m *metrics.Collector, now func() time.Time) *Calendar {
	if m == nil {
		m = metrics.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{claims: claims, triggers: triggers, metrics: m, now: now}
}

// Handle processes notifications in order. Rejected commands keep their
// claim; transient failures release it so the provider's retry can land.
func (c *Calendar) Handle(ctx context.Context, notifications []CalendarNotification) (CalendarResult, error) {
	var result CalendarResult
	var errs []error
	for _, n := range notifications {
		if n.ID == "" || n.WorkItemID == "" || strings.TrimSpace(n.EventType) == "" {
			result.Rejected++
			c.metrics.Warn(ctx, metrics.CategoryWebhook, "calendar notification missing fields",
				slog.String("notification_id", n.ID))
			continue
		}
		claimKey := "calendar:" + n.ID
		claimed, err := c.claims.Claim(ctx, n.WorkItemID, claimKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim notification %s: %w", n.ID, err))
			continue
		}

		at := n.OccurredAt
		if at.IsZero() {
			at = c.now()
		}
		_, err = c.triggers.ApplyMeetingTrigger(ctx, witypes.ApplyMeetingTriggerInput{
			Meta: command.Meta{
				AggregateID: n.WorkItemID,
				Actor:       eventlog.SystemActor(CalendarActorID),
				OccurredAt:  at.UTC(),
			},
			MeetingID:      n.MeetingID,
			Trigger:        n.EventType,
			NotificationID: n.ID,
		})
		switch {
		case err == nil:
			result.Applied++
			if !claimed {
				c.metrics.Warn(ctx, metrics.CategoryWebhook, "calendar claim held without applied trigger",
					slog.String("notification_id", n.ID))
			}
			c.metrics.Info(ctx, metrics.CategoryWebhook, "calendar trigger applied",
				slog.String("notification_id", n.ID),
				slog.String("work_item_id", n.WorkItemID),
				slog.String("trigger", n.EventType))
		case errors.Is(err, wiports.ErrDuplicateNotification):
			result.Duplicates++
		case errors.Is(err, command.ErrValidationRejected), errors.Is(err, wiports.ErrNotFound):
			result.Rejected++
			c.metrics.Warn(ctx, metrics.CategoryWebhook, "calendar trigger rejected",
				slog.String("notification_id", n.ID),
				slog.String("error", err.Error()))
		default:
			if claimed {
				if rerr := c.claims.Release(context.WithoutCancel(ctx), n.WorkItemID, claimKey); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			errs = append(errs, fmt.Errorf("apply notification %s: %w", n.ID, err))
		}
	}
	return result, errors.Join(errs...)
}
