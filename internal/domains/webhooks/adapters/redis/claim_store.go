// Package redis implements the claim store on Redis SETNX.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

// DefaultPrefix namespaces claim keys.
const DefaultPrefix = "worktrack:claim"

var _ ports.ClaimStore = (*ClaimStore)(nil)

// ClaimStore claims keys with SET NX. A zero TTL keeps claims forever.
type ClaimStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option configures the claim store.
type Option func(*ClaimStore)

func WithPrefix(prefix string) Option {
	return func(s *ClaimStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires claims after ttl. It must exceed the longest redelivery
// horizon of the webhook provider.
func WithTTL(ttl time.Duration) Option {
	return func(s *ClaimStore) {
		s.ttl = ttl
	}
}

func NewClaimStore(client redis.Cmdable, opts ...Option) *ClaimStore {
	s := &ClaimStore{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ClaimStore) Claim(ctx context.Context, aggregateID, externalMessageID string) (bool, error) {
	if s.client == nil {
		return false, errors.New("redis claim store not configured")
	}
	claimed, err := s.client.SetNX(ctx, s.key(aggregateID, externalMessageID), time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", aggregateID, externalMessageID, err)
	}
	return claimed, nil
}

func (s *ClaimStore) Release(ctx context.Context, aggregateID, externalMessageID string) error {
	if s.client == nil {
		return errors.New("redis claim store not configured")
	}
	if err := s.client.Del(ctx, s.key(aggregateID, externalMessageID)).Err(); err != nil {
		return fmt.Errorf("release %s/%s: %w", aggregateID, externalMessageID, err)
	}
	return nil
}

func (s *ClaimStore) key(aggregateID, externalMessageID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, aggregateID, externalMessageID)
}
