package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

var (
	_ ports.RebuildableStore = (*Store)(nil)
	_ ports.ShadowStore      = (*shadow)(nil)
)

// Store keeps support cases in memory.
type Store struct {
	mu    sync.RWMutex
	cases map[string]domain.Case
}

func NewStore() *Store {
	return &Store{cases: map[string]domain.Case{}}
}

func (s *Store) Get(_ context.Context, id string) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (s *Store) Save(_ context.Context, c domain.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cases[c.ID]; ok && projection.AlreadyApplied(c.LastEventSequence, existing.LastEventSequence) {
		return projection.ErrStaleWrite
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *Store) ListOpen(context.Context) ([]domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Case, 0)
	for _, c := range s.cases {
		if c.Status == domain.StatusOpen {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Shadow(context.Context) (ports.ShadowStore, error) {
	return &shadow{Store: NewStore(), live: s}, nil
}

type shadow struct {
	*Store
	live *Store
}

func (sh *shadow) Promote(context.Context) error {
	sh.Store.mu.RLock()
	rebuilt := sh.Store.cases
	sh.Store.mu.RUnlock()

	sh.live.mu.Lock()
	sh.live.cases = rebuilt
	sh.live.mu.Unlock()
	return nil
}

func (sh *shadow) Discard(context.Context) error {
	sh.Store.mu.Lock()
	sh.Store.cases = map[string]domain.Case{}
	sh.Store.mu.Unlock()
	return nil
}
