package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ActionRequest is the body of performAction
type ActionRequest struct {
	Action  workflow.ActionType `json:"action"`
	Remarks string              `json:"remarks"`
	Payload map[string]any      `json:"payload,omitempty"`
}

// ActionResult reports how an action resolved
type ActionResult struct {
	Instance *entity.WorkflowInstance `json:"instance"`
	Action   *entity.WorkflowAction   `json:"action"`
	Advanced bool                     `json:"advanced"`
	Closed   bool                     `json:"closed"`
	// PendingRoles lists the roles still missing on a parallel step
	PendingRoles []string `json:"pending_roles,omitempty"`
}

// InstanceView is an instance with its current step and action history
type InstanceView struct {
	Instance *entity.WorkflowInstance `json:"instance"`
	Step     *entity.WorkflowStep     `json:"current_step"`
	Actions  []*entity.WorkflowAction `json:"actions"`
}

// Scheduler performs the domain side effect of a SCHEDULE action. It runs
// inside the action's transaction.
type Scheduler interface {
	Schedule(ctx context.Context, instance *entity.WorkflowInstance, step *entity.WorkflowStep, actor authz.Actor, payload map[string]any) error
}

// WorkflowService is the workflow engine: instance lifecycle and action processing
type WorkflowService interface {
	Initiate(ctx context.Context, entityType, entityID string, actor authz.Actor) (*entity.WorkflowInstance, error)
	PerformAction(ctx context.Context, instanceID int64, req ActionRequest, actor authz.Actor) (*ActionResult, error)
	CloseWorkflow(ctx context.Context, instanceID int64, final workflow.InstanceStatus, actor authz.Actor) (*entity.WorkflowInstance, error)
	GetInstance(ctx context.Context, instanceID int64) (*InstanceView, error)
	GetPendingActions(ctx context.Context, role string) ([]*entity.PendingAction, error)
	ListActions(ctx context.Context, instanceID int64) ([]*entity.WorkflowAction, error)
	FindActive(ctx context.Context, entityType, entityID string) (*entity.WorkflowInstance, error)
	Trail(ctx context.Context, instanceID int64) (*port.InstanceTrail, error)
	RegisterScheduler(entityType string, scheduler Scheduler)
}

// WorkflowDeps are the collaborators of the workflow engine
type WorkflowDeps struct {
	Definitions port.DefinitionRepository
	Instances   port.InstanceRepository
	Actions     port.ActionRepository
	Audit       port.AuditRepository
	TxManager   port.TransactionManager
	Guard       *authz.Guard
	Registry    *dispatcher.Registry
	Bus         eventbus.Bus
	Logger      Logger
	// AdminRoles may close instances administratively; empty allows any non-excluded role
	AdminRoles []string
}

type workflowServiceImpl struct {
	WorkflowDeps
	schedulers map[string]Scheduler
	now        func() time.Time
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(deps WorkflowDeps) WorkflowService {
	return &workflowServiceImpl{
		WorkflowDeps: deps,
		schedulers:   make(map[string]Scheduler),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RegisterScheduler sets the SCHEDULE side effect of an entity type.
// Registration happens during wiring, before requests are served.
func (s *workflowServiceImpl) RegisterScheduler(entityType string, scheduler Scheduler) {
	s.schedulers[entityType] = scheduler
}

func (s *workflowServiceImpl) Initiate(ctx context.Context, entityType, entityID string, actor authz.Actor) (instance *entity.WorkflowInstance, err error) {
	ctx, span := tracing.Start(ctx, "workflow.Initiate",
		attribute.String("entity.type", entityType),
		attribute.String("entity.id", entityID),
	)
	defer func() { tracing.End(span, err) }()

	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", workflow.ErrValidation)
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: unauthenticated actor", workflow.ErrForbidden)
	}

	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		def, err := s.Definitions.GetActiveByEntityType(txCtx, entityType)
		if err != nil {
			return err
		}
		if def == nil {
			return fmt.Errorf("%w: no active workflow definition for %s", workflow.ErrNotFound, entityType)
		}

		existing, err := s.Instances.FindActive(txCtx, entityType, entityID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: instance %d is already in progress for %s/%s",
				workflow.ErrConflict, existing.ID, entityType, entityID)
		}

		first, err := s.Definitions.GetNextStep(txCtx, def.ID, 0)
		if err != nil {
			return err
		}
		if first == nil {
			return fmt.Errorf("%w: definition %d has no steps", workflow.ErrValidation, def.ID)
		}

		instance = &entity.WorkflowInstance{
			WorkflowID:  def.ID,
			EntityType:  entityType,
			EntityID:    entityID,
			CurrentStep: first.StepOrder,
			Status:      workflow.StatusInProgress,
			InitiatedBy: actor.ID,
		}
		if err := s.Instances.Create(txCtx, instance); err != nil {
			return err
		}

		return s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditWorkflowInitiated,
			Entity:   entityType,
			EntityID: entityID,
			Metadata: map[string]any{
				"instance_id":   instance.ID,
				"definition_id": def.ID,
				"version":       def.Version,
				"step":          first.Name,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Workflow initiated",
		"instance_id", instance.ID,
		"entity_type", entityType,
		"entity_id", entityID,
		"actor_id", actor.ID,
	)
	s.publish(ctx, event.TypeWorkflowInitiated, instance, actor, map[string]any{"step": instance.CurrentStep})
	return instance, nil
}

func (s *workflowServiceImpl) PerformAction(ctx context.Context, instanceID int64, req ActionRequest, actor authz.Actor) (result *ActionResult, err error) {
	ctx, span := tracing.Start(ctx, "workflow.PerformAction",
		attribute.Int64("instance.id", instanceID),
		attribute.String("action", req.Action.String()),
		attribute.String("actor.role", actor.Role),
	)
	defer func() { tracing.End(span, err) }()

	if !req.Action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", workflow.ErrValidation, req.Action)
	}

	result = &ActionResult{}
	var step *entity.WorkflowStep

	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := s.loadOpenInstance(txCtx, instanceID)
		if err != nil {
			return err
		}

		step, err = s.Definitions.GetStep(txCtx, instance.WorkflowID, instance.CurrentStep)
		if err != nil {
			return err
		}
		if step == nil {
			return fmt.Errorf("%w: step %d of definition %d", workflow.ErrNotFound, instance.CurrentStep, instance.WorkflowID)
		}
		span.SetAttributes(
			attribute.String("entity.type", instance.EntityType),
			attribute.String("entity.id", instance.EntityID),
			attribute.String("step", step.Name),
		)

		if err := s.Guard.Authorize(txCtx, authz.Request{Actor: actor, Instance: instance, Step: step}); err != nil {
			return err
		}

		action := &entity.WorkflowAction{
			InstanceID: instance.ID,
			StepID:     step.ID,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     req.Action,
			Remarks:    req.Remarks,
			Payload:    req.Payload,
		}
		if err := s.Actions.Append(txCtx, action); err != nil {
			return err
		}
		result.Action = action

		if err := s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditWorkflowAction,
			Entity:   instance.EntityType,
			EntityID: instance.EntityID,
			Metadata: map[string]any{
				"instance_id": instance.ID,
				"step":        step.Name,
				"step_order":  step.StepOrder,
				"action":      req.Action.String(),
				"role":        actor.Role,
			},
		}); err != nil {
			return err
		}

		switch req.Action {
		case workflow.ActionReject:
			if err := s.closeLocked(txCtx, instance, workflow.StatusRejected, actor); err != nil {
				return err
			}
			result.Closed = true

		case workflow.ActionSchedule:
			scheduler, ok := s.schedulers[instance.EntityType]
			if !ok {
				return fmt.Errorf("%w: %s does not support SCHEDULE", workflow.ErrValidation, instance.EntityType)
			}
			if err := scheduler.Schedule(txCtx, instance, step, actor, req.Payload); err != nil {
				return err
			}
			if err := s.advance(txCtx, instance, actor, result); err != nil {
				return err
			}

		case workflow.ActionApprove:
			if step.ApprovalType == workflow.ApprovalParallel {
				missing, err := s.missingRoles(txCtx, instance.ID, step)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					result.PendingRoles = missing
					break
				}
			}
			if err := s.advance(txCtx, instance, actor, result); err != nil {
				return err
			}
		}

		result.Instance = instance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Workflow action recorded",
		"instance_id", instanceID,
		"step", step.Name,
		"action", req.Action.String(),
		"actor_id", actor.ID,
		"advanced", result.Advanced,
		"closed", result.Closed,
	)
	s.publish(ctx, event.TypeWorkflowActionRecorded, result.Instance, actor, map[string]any{
		"action": req.Action.String(),
		"step":   step.Name,
	})
	if result.Closed {
		s.afterClose(ctx, result.Instance, actor)
	}
	return result, nil
}

// missingRoles returns the step's approver roles without an APPROVE on this step
func (s *workflowServiceImpl) missingRoles(ctx context.Context, instanceID int64, step *entity.WorkflowStep) ([]string, error) {
	actions, err := s.Actions.ListForStep(ctx, instanceID, step.ID)
	if err != nil {
		return nil, err
	}

	approved := make(map[string]bool)
	for _, a := range actions {
		if a.Action == workflow.ActionApprove {
			approved[a.ActorRole] = true
		}
	}

	var missing []string
	for _, role := range step.ApproverRoles {
		if !approved[role] {
			missing = append(missing, role)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// advance moves to the next step, or closes APPROVED when there is none
func (s *workflowServiceImpl) advance(ctx context.Context, instance *entity.WorkflowInstance, actor authz.Actor, result *ActionResult) error {
	next, err := s.Definitions.GetNextStep(ctx, instance.WorkflowID, instance.CurrentStep)
	if err != nil {
		return err
	}

	if next == nil {
		if err := s.closeLocked(ctx, instance, workflow.StatusApproved, actor); err != nil {
			return err
		}
		result.Closed = true
		return nil
	}

	if err := s.Instances.AdvanceStep(ctx, instance.ID, instance.CurrentStep, next.StepOrder); err != nil {
		return err
	}
	instance.CurrentStep = next.StepOrder
	instance.UpdatedAt = s.now()
	result.Advanced = true
	return nil
}

func (s *workflowServiceImpl) CloseWorkflow(ctx context.Context, instanceID int64, final workflow.InstanceStatus, actor authz.Actor) (instance *entity.WorkflowInstance, err error) {
	ctx, span := tracing.Start(ctx, "workflow.CloseWorkflow",
		attribute.Int64("instance.id", instanceID),
		attribute.String("status", final.String()),
	)
	defer func() { tracing.End(span, err) }()

	if !final.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is not a terminal status", workflow.ErrValidation, final)
	}
	if err := s.authorizeClose(actor); err != nil {
		return nil, err
	}

	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		instance, err = s.loadOpenInstance(txCtx, instanceID)
		if err != nil {
			return err
		}
		return s.closeLocked(txCtx, instance, final, actor)
	})
	if err != nil {
		return nil, err
	}

	s.afterClose(ctx, instance, actor)
	return instance, nil
}

func (s *workflowServiceImpl) authorizeClose(actor authz.Actor) error {
	if actor.ID == "" || actor.Role == "" {
		return fmt.Errorf("%w: unauthenticated actor", workflow.ErrForbidden)
	}
	if s.Guard.IsExcluded(actor.Role) {
		return fmt.Errorf("%w: role %s is excluded from acting", workflow.ErrForbidden, actor.Role)
	}
	if len(s.AdminRoles) == 0 {
		return nil
	}
	for _, r := range s.AdminRoles {
		if r == actor.Role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not close workflows", workflow.ErrForbidden, actor.Role)
}

func (s *workflowServiceImpl) loadOpenInstance(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	instance, err := s.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %d", workflow.ErrNotFound, instanceID)
	}
	if instance.Status != workflow.StatusInProgress {
		return nil, fmt.Errorf("%w: instance %d is %s", workflow.ErrStateViolation, instanceID, instance.Status)
	}
	return instance, nil
}

// closeLocked writes the terminal status and its audit entry inside the caller's transaction
func (s *workflowServiceImpl) closeLocked(ctx context.Context, instance *entity.WorkflowInstance, final workflow.InstanceStatus, actor authz.Actor) error {
	at := s.now()
	if err := s.Instances.Close(ctx, instance.ID, final, at); err != nil {
		return err
	}
	instance.Status = final
	instance.CompletedAt = &at
	instance.UpdatedAt = at

	return s.Audit.LogAction(ctx, &entity.AuditLog{
		UserID:   actor.ID,
		Action:   entity.AuditWorkflowClosed,
		Entity:   instance.EntityType,
		EntityID: instance.EntityID,
		Metadata: map[string]any{
			"instance_id": instance.ID,
			"status":      final.String(),
			"step_order":  instance.CurrentStep,
		},
	})
}

// afterClose runs once the closing transaction has committed
func (s *workflowServiceImpl) afterClose(ctx context.Context, instance *entity.WorkflowInstance, actor authz.Actor) {
	s.Logger.Info("Workflow closed",
		"instance_id", instance.ID,
		"entity_type", instance.EntityType,
		"entity_id", instance.EntityID,
		"status", instance.Status.String(),
	)
	if s.Registry != nil {
		s.Registry.Dispatch(ctx, instance)
	}
	s.publish(ctx, event.TypeWorkflowClosed, instance, actor, map[string]any{"status": instance.Status.String()})
}

func (s *workflowServiceImpl) publish(ctx context.Context, t event.Type, instance *entity.WorkflowInstance, actor authz.Actor, payload map[string]any) {
	if s.Bus == nil || instance == nil {
		return
	}
	evt := event.NewEvent(t, instance.EntityType, instance.EntityID, payload).ForInstance(instance.ID, actor.ID)
	s.Bus.DispatchAsync(ctx, evt)
}

func (s *workflowServiceImpl) GetInstance(ctx context.Context, instanceID int64) (*InstanceView, error) {
	instance, err := s.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %d", workflow.ErrNotFound, instanceID)
	}

	step, err := s.Definitions.GetStep(ctx, instance.WorkflowID, instance.CurrentStep)
	if err != nil {
		return nil, err
	}
	actions, err := s.Actions.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return &InstanceView{Instance: instance, Step: step, Actions: actions}, nil
}

func (s *workflowServiceImpl) GetPendingActions(ctx context.Context, role string) ([]*entity.PendingAction, error) {
	if role == "" || s.Guard.IsExcluded(role) {
		return []*entity.PendingAction{}, nil
	}

	all, err := s.Instances.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*entity.PendingAction, 0, len(all))
	for _, p := range all {
		if p.Step.HasRole(role) {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

func (s *workflowServiceImpl) ListActions(ctx context.Context, instanceID int64) ([]*entity.WorkflowAction, error) {
	instance, err := s.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %d", workflow.ErrNotFound, instanceID)
	}
	return s.Actions.ListByInstance(ctx, instanceID)
}

func (s *workflowServiceImpl) FindActive(ctx context.Context, entityType, entityID string) (*entity.WorkflowInstance, error) {
	instance, err := s.Instances.FindActive(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: no active workflow for %s/%s", workflow.ErrNotFound, entityType, entityID)
	}
	return instance, nil
}

func (s *workflowServiceImpl) Trail(ctx context.Context, instanceID int64) (*port.InstanceTrail, error) {
	view, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	def, err := s.Definitions.GetByID(ctx, view.Instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: definition %d", workflow.ErrNotFound, view.Instance.WorkflowID)
	}
	if def.Steps, err = s.Definitions.ListSteps(ctx, def.ID); err != nil {
		return nil, err
	}

	audit, err := s.Audit.ListByEntity(ctx, view.Instance.EntityType, view.Instance.EntityID)
	if err != nil {
		return nil, err
	}

	return &port.InstanceTrail{
		Definition: def,
		Instance:   view.Instance,
		Actions:    view.Actions,
		Audit:      audit,
	}, nil
}
