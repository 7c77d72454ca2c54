// Package metrics holds the process metrics for commands, appended events
// and projector throughput plus a bounded log of recent activity. A
// Collector is created per process and passed to every component; nothing
// here registers with the global Prometheus registry.
package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultLogCapacity bounds the recent activity buffer.
const DefaultLogCapacity = 200

// Category tags a recent log entry.
type Category string

const (
	CategoryCommand   Category = "command"
	CategoryEvent     Category = "event"
	CategoryProjector Category = "projector"
	CategorySLA       Category = "sla"
	CategoryRebuild   Category = "rebuild"
	CategoryGuardrail Category = "guardrail"
	CategoryWebhook   Category = "webhook"
)

// LogEntry is one structured entry in the recent activity buffer.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// CommandTotals counts command executions of one type.
type CommandTotals struct {
	Executed  int64 `json:"executed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// ProcessedTotals counts projector outcomes.
type ProcessedTotals struct {
	Applied int64 `json:"applied"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// Totals is the in-memory view of every counter.
type Totals struct {
	Commands        map[string]CommandTotals   `json:"commands"`
	EventsAppended  map[string]int64           `json:"eventsAppended"`
	EventsProcessed map[string]ProcessedTotals `json:"eventsProcessed"`
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger mirrors every recorded entry to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCapacity sets the size of the recent activity buffer.
func WithCapacity(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock overrides the timestamp source for log entries.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// Collector records counters in a private Prometheus registry and keeps
// matching in-memory totals for the JSON snapshot.
type Collector struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	eventsAppended  *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	projectorLag    *prometheus.GaugeVec

	logger   *slog.Logger
	now      func() time.Time
	capacity int

	mu        sync.Mutex
	cmdTotals map[string]CommandTotals
	appended  map[string]int64
	processed map[string]ProcessedTotals
	ring      []LogEntry
	next      int
	filled    bool
}

// New builds a Collector with its own registry.
func New(opts ...Option) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		capacity: DefaultLogCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	factory := promauto.With(c.registry)
	c.commands = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "worktrack_commands_total",
		Help: "Commands handled by type and result",
	}, []string{"command_type", "result"})
	c.eventsAppended = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "worktrack_events_appended_total",
		Help: "Events appended to the log by event type",
	}, []string{"event_type"})
	c.eventsProcessed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "worktrack_events_processed_total",
		Help: "Events consumed by projectors by outcome",
	}, []string{"projector", "event_type", "outcome"})
	c.projectorLag = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worktrack_projector_lag_events",
		Help: "Events appended but not yet processed by a projector",
	}, []string{"projector"})
	c.resetLocked()
	return c
}

// Reset clears every counter and the recent activity buffer.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands.Reset()
	c.eventsAppended.Reset()
	c.eventsProcessed.Reset()
	c.projectorLag.Reset()
	c.resetLocked()
}

func (c *Collector) resetLocked() {
	c.cmdTotals = map[string]CommandTotals{}
	c.appended = map[string]int64{}
	c.processed = map[string]ProcessedTotals{}
	c.ring = make([]LogEntry, c.capacity)
	c.next = 0
	c.filled = false
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the plain-text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCommand counts one command execution and its result.
func (c *Collector) RecordCommand(commandType string, err error) {
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	c.commands.WithLabelValues(commandType, result).Inc()

	c.mu.Lock()
	totals := c.cmdTotals[commandType]
	totals.Executed++
	if err != nil {
		totals.Failed++
	} else {
		totals.Succeeded++
	}
	c.cmdTotals[commandType] = totals
	c.mu.Unlock()
}

// RecordAppended counts one appended event.
func (c *Collector) RecordAppended(eventType string) {
	c.eventsAppended.WithLabelValues(eventType).Inc()
	c.mu.Lock()
	c.appended[eventType]++
	c.mu.Unlock()
}

// RecordProcessed counts one projector outcome. outcome is one of the
// projection outcomes; every skip variant is totalled as skipped.
func (c *Collector) RecordProcessed(projector, eventType, outcome string) {
	c.eventsProcessed.WithLabelValues(projector, eventType, outcome).Inc()
	c.mu.Lock()
	totals := c.processed[projector]
	switch outcome {
	case "applied":
		totals.Applied++
	case "failed":
		totals.Failed++
	default:
		totals.Skipped++
	}
	c.processed[projector] = totals
	c.mu.Unlock()
}

// SetLag publishes the lag gauge for a projector.
func (c *Collector) SetLag(projector string, lag int64) {
	c.projectorLag.WithLabelValues(projector).Set(float64(lag))
}

// Log mirrors an entry to the logger and stores it in the ring buffer.
func (c *Collector) Log(ctx context.Context, category Category, level slog.Level, msg string, attrs ...slog.Attr) {
	fields := make(map[string]any, len(attrs))
	for _, a := range attrs {
		fields[a.Key] = a.Value.Any()
	}
	all := append([]slog.Attr{slog.String("category", string(category))}, attrs...)
	c.logger.LogAttrs(ctx, level, msg, all...)

	entry := LogEntry{
		Timestamp: c.now().UTC(),
		Category:  category,
		Level:     level.String(),
		Message:   msg,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	c.mu.Lock()
	c.ring[c.next] = entry
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.filled = true
	}
	c.mu.Unlock()
}

// Info records an informational entry.
func (c *Collector) Info(ctx context.Context, category Category, msg string, attrs ...slog.Attr) {
	c.Log(ctx, category, slog.LevelInfo, msg, attrs...)
}

// Warn records a warning entry.
func (c *Collector) Warn(ctx context.Context, category Category, msg string, attrs ...slog.Attr) {
	c.Log(ctx, category, slog.LevelWarn, msg, attrs...)
}

// Error records an error entry.
func (c *Collector) Error(ctx context.Context, category Category, msg string, attrs ...slog.Attr) {
	c.Log(ctx, category, slog.LevelError, msg, attrs...)
}

// RecentLogs returns buffered entries, oldest first.
func (c *Collector) RecentLogs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.filled {
		return append([]LogEntry(nil), c.ring[:c.next]...)
	}
	out := make([]LogEntry, 0, len(c.ring))
	out = append(out, c.ring[c.next:]...)
	return append(out, c.ring[:c.next]...)
}

// Totals returns a copy of the in-memory counters.
func (c *Collector) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Totals{
		Commands:        make(map[string]CommandTotals, len(c.cmdTotals)),
		EventsAppended:  make(map[string]int64, len(c.appended)),
		EventsProcessed: make(map[string]ProcessedTotals, len(c.processed)),
	}
	for k, v := range c.cmdTotals {
		out.Commands[k] = v
	}
	for k, v := range c.appended {
		out.EventsAppended[k] = v
	}
	for k, v := range c.processed {
		out.EventsProcessed[k] = v
	}
	return out
}

// CommandTypes lists command types seen so far in sorted order.
func (t Totals) CommandTypes() []string {
	keys := make([]string, 0, len(t.Commands))
	for k := range t.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
