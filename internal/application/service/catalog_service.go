package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/pkg/utils"
)

// StepInput is one step supplied to AddSteps
type StepInput struct {
	Order         int            `json:"order"`
	Name          string         `json:"name"`
	ApprovalType  string         `json:"approval_type"`
	ApproverRoles []string       `json:"approver_roles"`
	Conditions    map[string]any `json:"conditions,omitempty"`
}

// CatalogService manages workflow definitions and their steps
type CatalogService interface {
	// CreateDefinition creates the next version for an entity type and makes it
	// the only active definition of that type
	CreateDefinition(ctx context.Context, name, module, entityType, actorID string) (*entity.WorkflowDefinition, error)

	// AddSteps appends steps; orders must be positive, unique and above every existing order
	AddSteps(ctx context.Context, definitionID int64, steps []StepInput, actorID string) ([]*entity.WorkflowStep, error)

	DeactivateDefinition(ctx context.Context, definitionID int64, actorID string) error

	// GetDefinition returns a definition with its steps
	GetDefinition(ctx context.Context, definitionID int64) (*entity.WorkflowDefinition, error)

	ListSteps(ctx context.Context, definitionID int64) ([]*entity.WorkflowStep, error)
}

type catalogServiceImpl struct {
	definitionRepo port.DefinitionRepository
	auditRepo      port.AuditRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	definitionRepo port.DefinitionRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	logger Logger,
) CatalogService {
	return &catalogServiceImpl{
		definitionRepo: definitionRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

func (s *catalogServiceImpl) CreateDefinition(ctx context.Context, name, module, entityType, actorID string) (*entity.WorkflowDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: definition name is required", workflow.ErrValidation)
	}
	if strings.TrimSpace(module) == "" {
		return nil, fmt.Errorf("%w: module is required", workflow.ErrValidation)
	}
	if err := utils.ValidateEntityType(entityType); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}

	def := &entity.WorkflowDefinition{
		Name:       name,
		Module:     module,
		EntityType: entityType,
		IsActive:   true,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		version, err := s.definitionRepo.NextVersion(txCtx, entityType)
		if err != nil {
			return err
		}
		def.Version = version

		if err := s.definitionRepo.DeactivateByEntityType(txCtx, entityType); err != nil {
			return err
		}
		if err := s.definitionRepo.Create(txCtx, def); err != nil {
			return err
		}

		return s.auditRepo.LogAction(txCtx, &entity.AuditLog{
			UserID:   actorID,
			Action:   entity.AuditDefinitionCreated,
			Entity:   "workflow_definition",
			EntityID: fmt.Sprint(def.ID),
			Metadata: map[string]any{"entity_type": entityType, "version": version},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow definition created",
		"definition_id", def.ID,
		"entity_type", entityType,
		"version", def.Version,
	)
	return def, nil
}

func (s *catalogServiceImpl) AddSteps(ctx context.Context, definitionID int64, inputs []StepInput, actorID string) ([]*entity.WorkflowStep, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", workflow.ErrValidation)
	}

	seen := make(map[int]bool, len(inputs))
	steps := make([]*entity.WorkflowStep, 0, len(inputs))
	for _, in := range inputs {
		step, err := validateStep(in)
		if err != nil {
			return nil, err
		}
		if seen[in.Order] {
			return nil, fmt.Errorf("%w: duplicate step order %d", workflow.ErrValidation, in.Order)
		}
		seen[in.Order] = true
		step.WorkflowID = definitionID
		steps = append(steps, step)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		def, err := s.definitionRepo.GetByID(txCtx, definitionID)
		if err != nil {
			return err
		}
		if def == nil {
			return fmt.Errorf("%w: definition %d", workflow.ErrNotFound, definitionID)
		}

		existing, err := s.definitionRepo.ListSteps(txCtx, definitionID)
		if err != nil {
			return err
		}
		maxOrder := 0
		for _, st := range existing {
			if st.StepOrder > maxOrder {
				maxOrder = st.StepOrder
			}
		}

		for _, step := range steps {
			if step.StepOrder <= maxOrder {
				return fmt.Errorf("%w: step order %d must be greater than existing order %d",
					workflow.ErrValidation, step.StepOrder, maxOrder)
			}
		}
		for _, step := range steps {
			if err := s.definitionRepo.AddStep(txCtx, step); err != nil {
				return err
			}
		}

		orders := make([]int, 0, len(steps))
		for _, step := range steps {
			orders = append(orders, step.StepOrder)
		}
		return s.auditRepo.LogAction(txCtx, &entity.AuditLog{
			UserID:   actorID,
			Action:   entity.AuditStepsAdded,
			Entity:   "workflow_definition",
			EntityID: fmt.Sprint(definitionID),
			Metadata: map[string]any{"orders": orders},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow steps added", "definition_id", definitionID, "count", len(steps))
	return steps, nil
}

func validateStep(in StepInput) (*entity.WorkflowStep, error) {
	if in.Order <= 0 {
		return nil, fmt.Errorf("%w: step order must be positive, got %d", workflow.ErrValidation, in.Order)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: step %d has no name", workflow.ErrValidation, in.Order)
	}

	approvalType := workflow.ApprovalType(strings.ToUpper(in.ApprovalType))
	if in.ApprovalType == "" {
		approvalType = workflow.ApprovalSequential
	}
	if !approvalType.IsValid() {
		return nil, fmt.Errorf("%w: unknown approval type %q", workflow.ErrValidation, in.ApprovalType)
	}

	if len(in.ApproverRoles) == 0 {
		return nil, fmt.Errorf("%w: step %d has no approver roles", workflow.ErrValidation, in.Order)
	}
	roles := make([]string, 0, len(in.ApproverRoles))
	seen := make(map[string]bool, len(in.ApproverRoles))
	for _, r := range in.ApproverRoles {
		if err := utils.ValidateRole(r); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", workflow.ErrValidation, in.Order, err)
		}
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}

	return &entity.WorkflowStep{
		StepOrder:     in.Order,
		Name:          strings.TrimSpace(in.Name),
		ApprovalType:  approvalType,
		ApproverRoles: roles,
		Conditions:    in.Conditions,
	}, nil
}

func (s *catalogServiceImpl) DeactivateDefinition(ctx context.Context, definitionID int64, actorID string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		def, err := s.definitionRepo.GetByID(txCtx, definitionID)
		if err != nil {
			return err
		}
		if def == nil {
			return fmt.Errorf("%w: definition %d", workflow.ErrNotFound, definitionID)
		}
		if err := s.definitionRepo.Deactivate(txCtx, definitionID); err != nil {
			return err
		}
		return s.auditRepo.LogAction(txCtx, &entity.AuditLog{
			UserID:   actorID,
			Action:   entity.AuditDefinitionDeactivate,
			Entity:   "workflow_definition",
			EntityID: fmt.Sprint(definitionID),
		})
	})
}

func (s *catalogServiceImpl) GetDefinition(ctx context.Context, definitionID int64) (*entity.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: definition %d", workflow.ErrNotFound, definitionID)
	}

	if def.Steps, err = s.definitionRepo.ListSteps(ctx, definitionID); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *catalogServiceImpl) ListSteps(ctx context.Context, definitionID int64) ([]*entity.WorkflowStep, error) {
	def, err := s.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	return def.Steps, nil
}
