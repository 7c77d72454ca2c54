// Package messaging carries append notifications between the event store
// and projector runners, in process or over NATS.
package messaging

import (
	"context"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
)

var _ eventports.AppendNotifier = (*ChannelNotifier)(nil)

// ChannelNotifier coalesces notifications into a single pending wake-up.
type ChannelNotifier struct {
	wake chan struct{}
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{wake: make(chan struct{}, 1)}
}

// Notify never blocks; a wake-up already pending absorbs this one.
func (n *ChannelNotifier) Notify(_ context.Context, _ []eventlog.Event) {
	n.Signal()
}

// Signal queues a wake-up.
func (n *ChannelNotifier) Signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Wake is read by the projector runner.
func (n *ChannelNotifier) Wake() <-chan struct{} {
	return n.wake
}

// Fanout notifies every notifier in order.
type Fanout []eventports.AppendNotifier

func (f Fanout) Notify(ctx context.Context, events []eventlog.Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, events)
		}
	}
}
