package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	"github.com/Apurer/worktrack/internal/domains/eventlog/ports"
)

var _ ports.EventStore = (*Store)(nil)

// Store keeps the event log in process memory for development and tests.
type Store struct {
	mu       sync.RWMutex
	events   []domain.Event
	byAgg    map[string][]int
	notifier ports.AppendNotifier
	now      func() time.Time
}

// NewStore constructs an empty in-memory event store.
func NewStore() *Store {
	return &Store{
		byAgg:    map[string][]int{},
		notifier: ports.NopNotifier{},
		now:      time.Now,
	}
}

// WithClock overrides the time source used when OccurredAt is zero.
func (s *Store) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithNotifier signals the notifier after every successful append.
func (s *Store) WithNotifier(n ports.AppendNotifier) {
	if n != nil {
		s.notifier = n
	}
}

// Append assigns sequences to all payloads under a single lock.
func (s *Store) Append(ctx context.Context, in ports.AppendInput) ([]domain.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	current := int64(len(s.byAgg[in.AggregateID]))
	if current > 0 {
		existing := s.events[s.byAgg[in.AggregateID][0]]
		if existing.AggregateType != in.AggregateType {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: aggregate %s is a %s", domain.ErrAggregateMismatch, in.AggregateID, existing.AggregateType)
		}
	}
	if in.ExpectedSequence != nil && *in.ExpectedSequence != current {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: aggregate %s expected sequence %d, found %d", ports.ErrConcurrencyConflict, in.AggregateID, *in.ExpectedSequence, current)
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	appended := make([]domain.Event, 0, len(in.Payloads))
	for i, payload := range in.Payloads {
		evt := domain.Event{
			GlobalSequence:    int64(len(s.events)) + 1,
			AggregateType:     in.AggregateType,
			AggregateID:       in.AggregateID,
			AggregateSequence: current + int64(i) + 1,
			Type:              payload.EventType(),
			Data:              payload,
			OccurredAt:        occurredAt,
			Actor:             in.Actor,
		}
		s.byAgg[in.AggregateID] = append(s.byAgg[in.AggregateID], len(s.events))
		s.events = append(s.events, evt)
		appended = append(appended, evt)
	}
	s.mu.Unlock()

	s.notifier.Notify(ctx, appended)
	return appended, nil
}

// ReadAggregateStream returns events with AggregateSequence > fromSequence.
func (s *Store) ReadAggregateStream(_ context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indexes := s.byAgg[aggregateID]
	out := make([]domain.Event, 0, len(indexes))
	for _, idx := range indexes {
		if evt := s.events[idx]; evt.AggregateSequence > fromSequence {
			out = append(out, evt)
		}
	}
	return out, nil
}

// ReadGlobalStream returns at most limit events with GlobalSequence > from.
func (s *Store) ReadGlobalStream(_ context.Context, fromGlobalSequence int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// events are stored in global sequence order
	start := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].GlobalSequence > fromGlobalSequence
	})
	if remaining := len(s.events) - start; limit > remaining {
		limit = remaining
	}
	end := start + limit
	out := make([]domain.Event, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

// LatestGlobalSequence returns the highest assigned global sequence, 0 when empty.
func (s *Store) LatestGlobalSequence(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}
