package memory

import (
	"context"
	"sync"

	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

var _ ports.ClaimStore = (*ClaimStore)(nil)

type claimKey struct {
	aggregateID string
	messageID   string
}

// ClaimStore keeps claims in process memory.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[claimKey]struct{}
}

func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: map[claimKey]struct{}{}}
}

func (s *ClaimStore) Claim(_ context.Context, aggregateID, externalMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{aggregateID: aggregateID, messageID: externalMessageID}
	if _, taken := s.claims[key]; taken {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *ClaimStore) Release(_ context.Context, aggregateID, externalMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, claimKey{aggregateID: aggregateID, messageID: externalMessageID})
	return nil
}
