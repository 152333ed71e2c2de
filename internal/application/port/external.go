package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ChatNotifier posts a message to a team chat
type ChatNotifier interface {
	Notify(ctx context.Context, title, body string) error
}

// InstanceTrail is everything recorded about one workflow instance
type InstanceTrail struct {
	Definition *entity.WorkflowDefinition
	Instance   *entity.WorkflowInstance
	Actions    []*entity.WorkflowAction
	Audit      []*entity.AuditLog
}

// TrailExporter renders an instance trail as a document
type TrailExporter interface {
	Export(trail *InstanceTrail) ([]byte, error)
	ContentType() string
}
