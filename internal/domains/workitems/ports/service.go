package ports

import (
	"context"

	"github.com/Apurer/worktrack/internal/domains/workitems/application/types"
	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
)

// Service defines the work item use cases exposed to adapters (inbound/driving port).
type Service interface {
	CreateWorkItem(ctx context.Context, in types.CreateWorkItemInput) (*domain.WorkItem, error)
	UpdatePriority(ctx context.Context, in types.UpdatePriorityInput) (*domain.WorkItem, error)
	AdjustPriority(ctx context.Context, in types.AdjustPriorityInput) (*domain.WorkItem, error)
	AttachSignal(ctx context.Context, in types.AttachSignalInput) (*domain.WorkItem, error)
	AssignWorkItem(ctx context.Context, in types.AssignWorkItemInput) (*domain.WorkItem, error)
	SnoozeWorkItem(ctx context.Context, in types.SnoozeWorkItemInput) (*domain.WorkItem, error)
	ResolveWorkItem(ctx context.Context, in types.ResolveWorkItemInput) (*domain.WorkItem, error)
	ReopenWorkItem(ctx context.Context, in types.ReopenWorkItemInput) (*domain.WorkItem, error)
	ApplyMeetingTrigger(ctx context.Context, in types.ApplyMeetingTriggerInput) (*domain.WorkItem, error)
	Get(ctx context.Context, id string) (*domain.WorkItem, error)
	GetQueue(ctx context.Context, key domain.QueueKey) (*domain.QueueSummary, error)
}
