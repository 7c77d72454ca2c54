package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Apurer/worktrack/internal/domains/projections/ports"
)

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore provides an in-memory implementation for development and tests.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]ports.Checkpoint
}

// NewCheckpointStore constructs an empty in-memory store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: map[string]ports.Checkpoint{}}
}

// Load returns the checkpoint or nil when absent.
func (s *CheckpointStore) Load(_ context.Context, name string) (*ports.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[name]
	if !ok {
		return nil, nil
	}
	return cloneCheckpoint(cp), nil
}

// Save upserts the checkpoint while its generation is current.
func (s *CheckpointStore) Save(_ context.Context, cp ports.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.checkpoints[cp.ProjectorName]; ok && stored.Generation != cp.Generation {
		return fmt.Errorf("%w: %s at generation %d, stored %d", ports.ErrCheckpointMoved, cp.ProjectorName, cp.Generation, stored.Generation)
	}
	s.checkpoints[cp.ProjectorName] = *cloneCheckpoint(cp)
	return nil
}

// Reset stores a rebuilt checkpoint under the next generation.
func (s *CheckpointStore) Reset(_ context.Context, cp ports.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.Generation = 1
	if stored, ok := s.checkpoints[cp.ProjectorName]; ok {
		cp.Generation = stored.Generation + 1
		if stored.Status == ports.StatusPaused {
			cp.Status = ports.StatusPaused
		}
	}
	s.checkpoints[cp.ProjectorName] = *cloneCheckpoint(cp)
	return nil
}

// List returns all checkpoints ordered by projector name.
func (s *CheckpointStore) List(context.Context) ([]ports.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		out = append(out, *cloneCheckpoint(cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectorName < out[j].ProjectorName })
	return out, nil
}

func cloneCheckpoint(cp ports.Checkpoint) *ports.Checkpoint {
	out := cp
	if cp.LastProcessedAt != nil {
		at := *cp.LastProcessedAt
		out.LastProcessedAt = &at
	}
	return &out
}
