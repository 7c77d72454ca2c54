package ports

import (
	"context"

	"github.com/Apurer/worktrack/internal/domains/cases/application/types"
	"github.com/Apurer/worktrack/internal/domains/cases/domain"
)

// Service defines the support case use cases exposed to adapters.
type Service interface {
	OpenCase(ctx context.Context, in types.OpenCaseInput) (*domain.Case, error)
	RecordFirstResponse(ctx context.Context, in types.RecordFirstResponseInput) (*domain.Case, error)
	ChangeSeverity(ctx context.Context, in types.ChangeSeverityInput) (*domain.Case, error)
	RecordCustomerReply(ctx context.Context, in types.RecordCustomerReplyInput) (*domain.Case, error)
	ResolveCase(ctx context.Context, in types.ResolveCaseInput) (*domain.Case, error)
	ReopenCase(ctx context.Context, in types.ReopenCaseInput) (*domain.Case, error)
	CloseCase(ctx context.Context, in types.CloseCaseInput) (*domain.Case, error)
	MarkSLABreached(ctx context.Context, in types.MarkSLABreachedInput) (*domain.Case, error)
	Get(ctx context.Context, id string) (*domain.Case, error)
}
