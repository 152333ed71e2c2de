package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// WorkflowInstance is one execution of a definition against one domain entity.
// Instances are never deleted; closed instances remain as the audit record.
type WorkflowInstance struct {
	ID          int64                   `json:"id"`
	WorkflowID  int64                   `json:"workflow_id"`
	EntityType  string                  `json:"entity_type"`
	EntityID    string                  `json:"entity_id"`
	CurrentStep int                     `json:"current_step"`
	Status      workflow.InstanceStatus `json:"status"`
	InitiatedBy string                  `json:"initiated_by"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// WorkflowAction is an immutable record of an actor acting on a step
type WorkflowAction struct {
	ID         int64               `json:"id"`
	InstanceID int64               `json:"instance_id"`
	StepID     int64               `json:"step_id"`
	ActorID    string              `json:"actor_id"`
	ActorRole  string              `json:"actor_role"`
	Action     workflow.ActionType `json:"action"`
	Remarks    string              `json:"remarks"`
	Payload    map[string]any      `json:"payload,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// PendingAction is an in-progress instance awaiting the caller's role
type PendingAction struct {
	Instance *WorkflowInstance `json:"instance"`
	Step     *WorkflowStep     `json:"step"`
}
