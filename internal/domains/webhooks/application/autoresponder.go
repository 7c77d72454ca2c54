package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	casedomain "github.com/Apurer/worktrack/internal/domains/cases/domain"
	caseports "github.com/Apurer/worktrack/internal/domains/cases/ports"
	"github.com/Apurer/worktrack/internal/domains/webhooks/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
	"github.com/Apurer/worktrack/internal/platform/metrics"
)

// DefaultAutoReplyWindow allows one acknowledgement per case per window.
const DefaultAutoReplyWindow = 10 * time.Minute

// deferredBatch bounds one ProcessDeferred pass.
const deferredBatch = 100

var _ caseports.ReplyListener = (*AutoResponder)(nil)

// AutoResponder acknowledges inbound customer replies at most once per
// message and at most once per case per window. Replies inside the window
// are deferred to the end of it, never dropped.
type AutoResponder struct {
	claims  ports.ClaimStore
	effects ports.SideEffectLog
	mailer  ports.Mailer
	metrics *metrics.Collector
	window  time.Duration
	now     func() time.Time
	newID   func() string
}

// Option configures the responder.
type Option func(*AutoResponder)

func WithWindow(d time.Duration) Option {
	return func(a *AutoResponder) {
		if d > 0 {
			a.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *AutoResponder) {
		if now != nil {
			a.now = now
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(a *AutoResponder) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithIDs overrides side effect id generation.
func WithIDs(newID func() string) Option {
	return func(a *AutoResponder) {
		if newID != nil {
			a.newID = newID
		}
	}
}

func NewAutoResponder(claims ports.ClaimStore, effects ports.SideEffectLog, mailer ports.Mailer, opts ...Option) *AutoResponder {
	a := &AutoResponder{
		claims:  claims,
		effects: effects,
		mailer:  mailer,
		window:  DefaultAutoReplyWindow,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	return a
}

// CustomerReplied claims the message and sends or defers the
// acknowledgement. A message someone else already claimed is skipped. When
// nothing was sent or recorded the claim is released so a redelivery can
// acknowledge it.
func (a *AutoResponder) CustomerReplied(ctx context.Context, c casedomain.Case, messageID, from string) error {
	if from == "" {
		return nil
	}
	claimed, err := a.claims.Claim(ctx, c.ID, messageID)
	if err != nil {
		return fmt.Errorf("claim auto-ack: %w", err)
	}
	if !claimed {
		a.metrics.Info(ctx, metrics.CategoryWebhook, "auto-ack already claimed",
			slog.String("case_id", c.ID),
			slog.String("message_id", messageID))
		return nil
	}
	err = a.acknowledge(ctx, c, messageID, from)
	if err == nil || keepsClaim(err) {
		return err
	}
	if rerr := a.claims.Release(context.WithoutCancel(ctx), c.ID, messageID); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

func (a *AutoResponder) acknowledge(ctx context.Context, c casedomain.Case, messageID, from string) error {
	now := a.now().UTC()
	effect := domain.SideEffect{
		ID:                a.newID(),
		AggregateID:       c.ID,
		Kind:              domain.KindAutoAck,
		ExternalMessageID: messageID,
		Recipient:         from,
		Subject:           "Re: " + c.Subject,
		ScheduledAt:       now,
		CreatedAt:         now,
	}
	last, err := a.effects.LastSent(ctx, c.ID, domain.KindAutoAck)
	if err != nil {
		return err
	}
	if next := domain.NextAllowed(last, a.window); now.Before(next) {
		effect.Status = domain.StatusDeferred
		effect.ScheduledAt = next
		a.metrics.Info(ctx, metrics.CategoryGuardrail, "auto-ack deferred by rate limit",
			slog.String("case_id", c.ID),
			slog.Time("scheduled_at", next))
		return a.effects.Append(ctx, effect)
	}
	return a.deliver(ctx, effect, now, true)
}

// DeferredResult summarizes one ProcessDeferred pass.
type DeferredResult struct {
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

// ProcessDeferred delivers deferred acknowledgements that are due, pushing
// back any that would break the per-case window.
func (a *AutoResponder) ProcessDeferred(ctx context.Context) (DeferredResult, error) {
	var result DeferredResult
	now := a.now().UTC()
	due, err := a.effects.ListDue(ctx, now, deferredBatch)
	if err != nil {
		return result, err
	}
	for _, effect := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		last, err := a.effects.LastSent(ctx, effect.AggregateID, effect.Kind)
		if err != nil {
			return result, err
		}
		if next := domain.NextAllowed(last, a.window); now.Before(next) {
			effect.ScheduledAt = next
			if err := a.effects.Update(ctx, effect); err != nil {
				return result, err
			}
			result.Rescheduled++
			continue
		}
		switch err := a.deliver(ctx, effect, now, false); {
		case err == nil:
			result.Sent++
		case isPersistError(err):
			return result, err
		default:
			result.Failed++
		}
	}
	return result, nil
}

// persistError is a side effect log write that failed after delivery was
// attempted. sent reports whether the mail went out.
type persistError struct {
	err  error
	sent bool
}

func (e persistError) Error() string { return e.err.Error() }
func (e persistError) Unwrap() error { return e.err }

func isPersistError(err error) bool {
	var pe persistError
	return errors.As(err, &pe)
}

// sendError is a failed delivery already recorded for retry.
type sendError struct{ err error }

func (e sendError) Error() string { return "send auto-ack: " + e.err.Error() }
func (e sendError) Unwrap() error { return e.err }

// keepsClaim reports whether err left the acknowledgement sent or recorded.
func keepsClaim(err error) bool {
	var se sendError
	if errors.As(err, &se) {
		return true
	}
	var pe persistError
	return errors.As(err, &pe) && pe.sent
}

func (a *AutoResponder) deliver(ctx context.Context, effect domain.SideEffect, now time.Time, isNew bool) error {
	sendErr := a.mailer.Send(ctx, ports.Message{
		To:        effect.Recipient,
		Subject:   effect.Subject,
		Body:      "We received your message and will get back to you shortly.",
		InReplyTo: effect.ExternalMessageID,
	})
	effect.Attempts++
	if sendErr != nil {
		effect.LastError = sendErr.Error()
		effect.Status = domain.StatusDeferred
		effect.ScheduledAt = now.Add(time.Duration(effect.Attempts) * time.Minute)
		if effect.Attempts >= domain.MaxAttempts {
			effect.Status = domain.StatusFailed
		}
		a.metrics.Error(ctx, metrics.CategoryWebhook, "auto-ack delivery failed",
			slog.String("case_id", effect.AggregateID),
			slog.Int("attempts", effect.Attempts),
			slog.String("error", sendErr.Error()))
	} else {
		sentAt := now
		effect.Status = domain.StatusSent
		effect.SentAt = &sentAt
		effect.LastError = ""
		a.metrics.Info(ctx, metrics.CategoryWebhook, "auto-ack sent",
			slog.String("case_id", effect.AggregateID),
			slog.String("message_id", effect.ExternalMessageID))
	}

	var err error
	if isNew {
		err = a.effects.Append(ctx, effect)
	} else {
		err = a.effects.Update(ctx, effect)
	}
	if err != nil {
		return persistError{err: err, sent: sendErr == nil}
	}
	if sendErr != nil {
		return sendError{err: sendErr}
	}
	return nil
}
