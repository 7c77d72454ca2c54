package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
)

// SubjectEventsAppended carries one message per committed append.
const SubjectEventsAppended = "worktrack.events.appended"

var _ eventports.AppendNotifier = (*NATSNotifier)(nil)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	Token         string
}

// DefaultConfig returns reconnect-forever defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		Name:          "worktrack",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS and logs connection state changes.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Appended is the message published on SubjectEventsAppended.
type Appended struct {
	AggregateType  string `json:"aggregateType"`
	AggregateID    string `json:"aggregateId"`
	Count          int    `json:"count"`
	GlobalSequence int64  `json:"globalSequence"`
}

// NATSNotifier publishes append notifications. Publish failures are logged;
// runners still poll, so a lost message only delays projection.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSNotifier(conn *nats.Conn, logger *slog.Logger) *NATSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{conn: conn, subject: SubjectEventsAppended, logger: logger}
}

func (n *NATSNotifier) Notify(ctx context.Context, events []eventlog.Event) {
	if len(events) == 0 || ctx.Err() != nil {
		return
	}
	last := events[len(events)-1]
	data, err := json.Marshal(Appended{
		AggregateType:  string(last.AggregateType),
		AggregateID:    last.AggregateID,
		Count:          len(events),
		GlobalSequence: last.GlobalSequence,
	})
	if err != nil {
		return
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Warn("failed to publish append notification",
			slog.String("subject", n.subject),
			slog.String("error", err.Error()))
	}
}

// SubscribeWake signals wake for every append published by any process.
func SubscribeWake(conn *nats.Conn, wake *ChannelNotifier) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(SubjectEventsAppended, func(*nats.Msg) {
		wake.Signal()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectEventsAppended, err)
	}
	return sub, nil
}
