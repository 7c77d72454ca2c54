package ports

import (
	"context"
	"errors"

	"github.com/Apurer/worktrack/internal/domains/cases/domain"
)

var (
	ErrNotFound = errors.New("support case not found")

	// ErrDuplicateMessage is returned when a customer reply repeats a
	// message id the case already recorded.
	ErrDuplicateMessage = errors.New("inbound message already recorded")
)

// Store holds the support case read model.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Case, error)
	// Save writes c only if the stored row is older than
	// c.LastEventSequence, otherwise projection.ErrStaleWrite.
	Save(ctx context.Context, c domain.Case) error
	// ListOpen returns open cases ordered by id.
	ListOpen(ctx context.Context) ([]domain.Case, error)
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

// ReplyListener is told about every accepted customer reply, after the
// event is appended.
type ReplyListener interface {
	CustomerReplied(ctx context.Context, c domain.Case, messageID, from string) error
}
