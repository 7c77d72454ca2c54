package ports

import (
	"context"
	"errors"

	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
)

var (
	ErrNotFound      = errors.New("work item not found")
	ErrQueueNotFound = errors.New("work queue not found")

	// ErrDuplicateNotification is returned when a meeting trigger repeats a
	// calendar notification the item already applied.
	ErrDuplicateNotification = errors.New("calendar notification already applied")
)

// Store holds the work item detail and queue read models.
type Store interface {
	Get(ctx context.Context, id string) (*domain.WorkItem, error)
	// Save writes item only if the stored row is older than
	// item.LastEventSequence, otherwise projection.ErrStaleWrite.
	Save(ctx context.Context, item domain.WorkItem) error
	ListByQueue(ctx context.Context, key domain.QueueKey) ([]domain.WorkItem, error)
	GetQueue(ctx context.Context, key domain.QueueKey) (*domain.QueueSummary, error)
	SaveQueue(ctx context.Context, summary domain.QueueSummary) error
}

// ShadowStore is an empty copy of the read model that replaces the live
// one on Promote.
type ShadowStore interface {
	Store
	Promote(ctx context.Context) error
	Discard(ctx context.Context) error
}

// RebuildableStore can open a shadow of itself.
type RebuildableStore interface {
	Store
	Shadow(ctx context.Context) (ShadowStore, error)
}
