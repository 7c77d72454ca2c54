package types

import "github.com/Apurer/worktrack/internal/shared/command"

// Command type names accepted by the case handler.
const (
	CommandOpenCase            = "OpenCase"
	CommandRecordFirstResponse = "RecordFirstResponse"
	CommandChangeSeverity      = "ChangeSeverity"
	CommandRecordCustomerReply = "RecordCustomerReply"
	CommandResolveCase         = "ResolveCase"
	CommandReopenCase          = "ReopenCase"
	CommandCloseCase           = "CloseCase"
	CommandMarkSLABreached     = "MarkSLABreached"
)

type OpenCaseInput struct {
	command.Meta
	Subject    string
	CustomerID string
	Severity   string
	Category   string
}

type RecordFirstResponseInput struct {
	command.Meta
	ResponderID string
}

type ChangeSeverityInput struct {
	command.Meta
	Severity string
}

// RecordCustomerReplyInput records an inbound message. MessageID is the
// mail provider's id and keys the auto-acknowledgement claim.
type RecordCustomerReplyInput struct {
	command.Meta
	MessageID string
	From      string
}

type ResolveCaseInput struct {
	command.Meta
	Resolution string
}

type ReopenCaseInput struct {
	command.Meta
	Reason string
}

type CloseCaseInput struct {
	command.Meta
}

// MarkSLABreachedInput is issued by the sweep. Kind is first_response or
// resolution.
type MarkSLABreachedInput struct {
	command.Meta
	Kind string
}
