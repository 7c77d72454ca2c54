package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

var (
	_ ports.RebuildableStore = (*Store)(nil)
	_ ports.ShadowStore      = (*shadow)(nil)
)

type tables struct {
	items  map[string]domain.WorkItem
	queues map[domain.QueueKey]domain.QueueSummary
}

func newTables() *tables {
	return &tables{
		items:  map[string]domain.WorkItem{},
		queues: map[domain.QueueKey]domain.QueueSummary{},
	}
}

// Store keeps the work item read models in memory.
type Store struct {
	mu sync.RWMutex
	t  *tables
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{t: newTables()}
}

func (s *Store) Get(_ context.Context, id string) (*domain.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.t.items[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := item.Clone()
	return &out, nil
}

func (s *Store) Save(_ context.Context, item domain.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.t.items[item.ID]; ok && projection.AlreadyApplied(item.LastEventSequence, existing.LastEventSequence) {
		return projection.ErrStaleWrite
	}
	s.t.items[item.ID] = item.Clone()
	return nil
}

func (s *Store) ListByQueue(_ context.Context, key domain.QueueKey) ([]domain.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WorkItem, 0)
	for _, item := range s.t.items {
		if item.Queue == key {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetQueue(_ context.Context, key domain.QueueKey) (*domain.QueueSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.t.queues[key]
	if !ok {
		return nil, ports.ErrQueueNotFound
	}
	q.ItemIDs = append([]string(nil), q.ItemIDs...)
	return &q, nil
}

func (s *Store) SaveQueue(_ context.Context, summary domain.QueueSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.ItemIDs = append([]string{}, summary.ItemIDs...)
	s.t.queues[summary.Key] = summary
	return nil
}

// Shadow opens an empty store that replaces this one on Promote.
func (s *Store) Shadow(context.Context) (ports.ShadowStore, error) {
	return &shadow{Store: NewStore(), live: s}, nil
}

type shadow struct {
	*Store
	live *Store
}

func (sh *shadow) Promote(context.Context) error {
	sh.Store.mu.RLock()
	rebuilt := sh.Store.t
	sh.Store.mu.RUnlock()

	sh.live.mu.Lock()
	sh.live.t = rebuilt
	sh.live.mu.Unlock()
	return nil
}

func (sh *shadow) Discard(context.Context) error {
	sh.Store.mu.Lock()
	sh.Store.t = newTables()
	sh.Store.mu.Unlock()
	return nil
}
