// Package mailer adapts outbound mail transports to the Mailer port.
package mailer

import (
	"context"
	"log/slog"

	"github.com/Apurer/worktrack/internal/clients/http/mailrelay"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

var (
	_ ports.Mailer = (*Relay)(nil)
	_ ports.Mailer = (*Log)(nil)
)

// Relay sends through the mail relay API.
type Relay struct {
	client *mailrelay.Client
}

func NewRelay(client *mailrelay.Client) *Relay {
	return &Relay{client: client}
}

// Send keys the relay request on InReplyTo so redeliveries collapse.
func (r *Relay) Send(ctx context.Context, msg ports.Message) error {
	var opts []mailrelay.SendOption
	if msg.InReplyTo != "" {
		opts = append(opts, mailrelay.WithIdempotencyKey(msg.InReplyTo))
	}
	return r.client.Send(ctx, mailrelay.Message{
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		InReplyTo: msg.InReplyTo,
	}, opts...)
}

// Log only logs the message. Used when no relay is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg ports.Message) error {
	l.logger.InfoContext(ctx, "outbound mail (not delivered)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("in_reply_to", msg.InReplyTo))
	return nil
}
