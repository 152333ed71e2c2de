package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// WorkflowDefinition is a versioned template of approval steps for one entity type
type WorkflowDefinition struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Module     string    `json:"module"`
	EntityType string    `json:"entity_type"`
	Version    int       `json:"version"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`

	// Steps is populated by catalog reads, ordered by StepOrder
	Steps []*WorkflowStep `json:"steps,omitempty"`
}

// WorkflowStep is one stage of a definition
type WorkflowStep struct {
	ID            int64                 `json:"id"`
	WorkflowID    int64                 `json:"workflow_id"`
	StepOrder     int                   `json:"step_order"`
	Name          string                `json:"name"`
	ApprovalType  workflow.ApprovalType `json:"approval_type"`
	ApproverRoles []string              `json:"approver_roles"`
	Conditions    map[string]any        `json:"conditions,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// HasRole returns true if role is one of the step's approver roles
func (s *WorkflowStep) HasRole(role string) bool {
	for _, r := range s.ApproverRoles {
		if r == role {
			return true
		}
	}
	return false
}
