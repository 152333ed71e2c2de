package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// ErrSkipped is returned by a DomainHandler that deliberately left the record
// untouched. The registry logs it at info level and runs no hooks.
var ErrSkipped = errors.New("domain dispatch skipped")

// DomainHandler applies a closed workflow's outcome to the originating domain record
type DomainHandler interface {
	OnApproved(ctx context.Context, instance *entity.WorkflowInstance) error
	OnRejected(ctx context.Context, instance *entity.WorkflowInstance) error
}

// StatusNamer is implemented by handlers that can name the domain status they
// write for a terminal workflow status. The registry logs it on failure.
type StatusNamer interface {
	AttemptedStatus(final workflow.InstanceStatus) string
}

// Hook runs after a workflow of its entity type closes APPROVED
type Hook func(ctx context.Context, instance *entity.WorkflowInstance) error

// StatusWriter writes a status from the domain's own vocabulary to the record
type StatusWriter func(ctx context.Context, entityID string, status string) error

// Effect is a secondary domain effect run after the status write
type Effect func(ctx context.Context, instance *entity.WorkflowInstance, status string) error

// StatusHandler maps the workflow's terminal statuses onto a domain vocabulary
type StatusHandler struct {
	Approved string
	Rejected string
	Write    StatusWriter
	Effects  []Effect
}

// OnApproved writes the approved status and runs the effects
func (h *StatusHandler) OnApproved(ctx context.Context, instance *entity.WorkflowInstance) error {
	return h.apply(ctx, instance, h.Approved)
}

// OnRejected writes the rejected status and runs the effects
func (h *StatusHandler) OnRejected(ctx context.Context, instance *entity.WorkflowInstance) error {
	return h.apply(ctx, instance, h.Rejected)
}

// AttemptedStatus implements StatusNamer
func (h *StatusHandler) AttemptedStatus(final workflow.InstanceStatus) string {
	if final == workflow.StatusApproved {
		return h.Approved
	}
	return h.Rejected
}

func (h *StatusHandler) apply(ctx context.Context, instance *entity.WorkflowInstance, status string) error {
	if status == "" {
		return nil
	}
	if err := h.Write(ctx, instance.EntityID, status); err != nil {
		return fmt.Errorf("write %s: %w", status, err)
	}
	for i, effect := range h.Effects {
		if err := effect(ctx, instance, status); err != nil {
			return fmt.Errorf("effect %d after %s: %w", i, status, err)
		}
	}
	return nil
}

// Verify interface compliance
var (
	_ DomainHandler = (*StatusHandler)(nil)
	_ StatusNamer   = (*StatusHandler)(nil)
)
