package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `id, name, module, entity_type, version, is_active, created_at`

const stepColumns = `id, workflow_id, step_order, name, approval_type, approver_roles, conditions, created_at`

// Create inserts a workflow definition
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (name, module, entity_type, version, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	createdAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		def.Name,
		def.Module,
		def.EntityType,
		def.Version,
		def.IsActive,
		createdAt,
	)
	if err != nil {
		r.logger.Error("Failed to create definition", zap.String("entity_type", def.EntityType), zap.Error(err))
		return sqlite.MapConflict(fmt.Errorf("failed to create definition: %w", err),
			"definition version %d already exists for %s", def.Version, def.EntityType)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	def.ID = id
	def.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetActiveByEntityType retrieves the active definition for an entity type
func (r *DefinitionRepository) GetActiveByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE entity_type = ? AND is_active = 1`
	return r.getOne(ctx, query, entityType)
}

func (r *DefinitionRepository) getOne(ctx context.Context, query string, arg any) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&def.ID,
		&def.Name,
		&def.Module,
		&def.EntityType,
		&def.Version,
		&def.IsActive,
		&def.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	return &def, nil
}

// NextVersion returns max(version)+1 for the entity type
func (r *DefinitionRepository) NextVersion(ctx context.Context, entityType string) (int, error) {
	var version int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_definitions WHERE entity_type = ?`,
		entityType,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}
	return version, nil
}

// DeactivateByEntityType clears the active flag for every definition of an entity type
func (r *DefinitionRepository) DeactivateByEntityType(ctx context.Context, entityType string) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_definitions SET is_active = 0 WHERE entity_type = ? AND is_active = 1`,
		entityType,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate definitions", zap.String("entity_type", entityType), zap.Error(err))
		return fmt.Errorf("failed to deactivate definitions: %w", err)
	}
	return nil
}

// Deactivate clears the active flag of one definition
func (r *DefinitionRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_definitions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to deactivate definition", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate definition: %w", err)
	}
	return nil
}

// AddStep appends a step to a definition
func (r *DefinitionRepository) AddStep(ctx context.Context, step *entity.WorkflowStep) error {
	query := `
		INSERT INTO workflow_steps (
			workflow_id, step_order, name, approval_type, approver_roles, conditions, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	roles, err := json.Marshal(step.ApproverRoles)
	if err != nil {
		return fmt.Errorf("failed to encode approver roles: %w", err)
	}
	conditions, err := encodeJSON(step.Conditions)
	if err != nil {
		return err
	}

	createdAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		step.WorkflowID,
		step.StepOrder,
		step.Name,
		step.ApprovalType.String(),
		string(roles),
		conditions,
		createdAt,
	)
	if err != nil {
		r.logger.Error("Failed to add step",
			zap.Int64("workflow_id", step.WorkflowID),
			zap.Int("step_order", step.StepOrder),
			zap.Error(err))
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: step order %d already exists", workflow.ErrValidation, step.StepOrder)
		}
		return fmt.Errorf("failed to add step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	step.ID = id
	step.CreatedAt = createdAt
	return nil
}

// GetStep retrieves the step with the given order
func (r *DefinitionRepository) GetStep(ctx context.Context, workflowID int64, stepOrder int) (*entity.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE workflow_id = ? AND step_order = ?`
	return r.getStep(ctx, query, workflowID, stepOrder)
}

// GetNextStep retrieves the lowest-ordered step after afterOrder
func (r *DefinitionRepository) GetNextStep(ctx context.Context, workflowID int64, afterOrder int) (*entity.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps
		WHERE workflow_id = ? AND step_order > ?
		ORDER BY step_order ASC LIMIT 1`
	return r.getStep(ctx, query, workflowID, afterOrder)
}

func (r *DefinitionRepository) getStep(ctx context.Context, query string, workflowID int64, order int) (*entity.WorkflowStep, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, workflowID, order)
	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step",
			zap.Int64("workflow_id", workflowID),
			zap.Int("step_order", order),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// ListSteps retrieves all steps of a definition in order
func (r *DefinitionRepository) ListSteps(ctx context.Context, workflowID int64) ([]*entity.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order ASC`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*entity.WorkflowStep, error) {
	var step entity.WorkflowStep
	var approvalType, roles string
	var conditions sql.NullString

	if err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepOrder,
		&step.Name,
		&approvalType,
		&roles,
		&conditions,
		&step.CreatedAt,
	); err != nil {
		return nil, err
	}

	step.ApprovalType = workflow.ApprovalType(approvalType)

	var err error
	if step.ApproverRoles, err = decodeStrings(roles); err != nil {
		return nil, err
	}
	if step.Conditions, err = decodeMap(conditions); err != nil {
		return nil, err
	}

	return &step, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
