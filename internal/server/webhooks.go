package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	casehttpmapper "github.com/Apurer/worktrack/internal/domains/cases/adapters/http/mapper"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
)

// CalendarNotification is one entry of a calendar change delivery.
type CalendarNotification struct {
	ID         string     `json:"id"`
	WorkItemID string     `json:"work_item_id"`
	MeetingID  string     `json:"meeting_id"`
	EventType  string     `json:"event_type"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// CalendarDelivery is the calendar webhook body.
type CalendarDelivery struct {
	Value []CalendarNotification `json:"value"`
}

// Post /v1/webhooks/calendar
// Subscription handshake when validationToken is present, otherwise a batch of notifications
func (a *api) CalendarWebhook(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token))
		return
	}
	var delivery CalendarDelivery
	if err := c.ShouldBindJSON(&delivery); err != nil {
		a.responder.BadRequest(c, err.Error())
		return
	}
	notifications := make([]webhookapp.CalendarNotification, 0, len(delivery.Value))
	for _, n := range delivery.Value {
		notification := webhookapp.CalendarNotification{
			ID:         n.ID,
			WorkItemID: n.WorkItemID,
			MeetingID:  n.MeetingID,
			EventType:  n.EventType,
		}
		if n.OccurredAt != nil {
			notification.OccurredAt = n.OccurredAt.UTC()
		}
		notifications = append(notifications, notification)
	}
	result, err := a.deps.Calendar.Handle(c.Request.Context(), notifications)
	if err != nil {
		// Claims of failed notifications were released; a non-2xx makes the
		// provider redeliver them.
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Post /v1/webhooks/inbound-email
// Records an inbound customer reply on its case
func (a *api) InboundEmailWebhook(c *gin.Context) {
	var payload casehttpmapper.InboundEmail
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.responder.BadRequest(c, err.Error())
		return
	}
	msg := webhookapp.InboundEmail{
		MessageID: payload.MessageID,
		CaseID:    payload.CaseID,
		From:      payload.From,
	}
	if payload.ReceivedAt != nil {
		msg.ReceivedAt = payload.ReceivedAt.UTC()
	}
	updated, err := a.deps.Inbound.Handle(c.Request.Context(), msg)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, casehttpmapper.FromCase(updated))
}
