package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, workflow_id, entity_type, entity_id, current_step, status,
	initiated_by, created_at, updated_at, completed_at`

// Create inserts a workflow instance. The partial unique index on
// (entity_type, entity_id) rejects a second in-progress instance.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			workflow_id, entity_type, entity_id, current_step, status,
			initiated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.WorkflowID,
		instance.EntityType,
		instance.EntityID,
		instance.CurrentStep,
		instance.Status.String(),
		instance.InitiatedBy,
		ts,
		ts,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return sqlite.MapConflict(err, "active workflow already exists for %s/%s",
				instance.EntityType, instance.EntityID)
		}
		r.logger.Error("Failed to create instance",
			zap.String("entity_type", instance.EntityType),
			zap.String("entity_id", instance.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	instance.CreatedAt = ts
	instance.UpdatedAt = ts
	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := scanInstance(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// FindActive retrieves the in-progress instance for an entity
func (r *InstanceRepository) FindActive(ctx context.Context, entityType, entityID string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE entity_type = ? AND entity_id = ? AND status = ?`

	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query,
		entityType, entityID, workflow.StatusInProgress.String())
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find active instance",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active instance: %w", err)
	}
	return instance, nil
}

// AdvanceStep moves the instance forward only if it is still in progress at fromStep
func (r *InstanceRepository) AdvanceStep(ctx context.Context, id int64, fromStep, toStep int) error {
	query := `
		UPDATE workflow_instances
		SET current_step = ?, updated_at = ?
		WHERE id = ? AND status = ? AND current_step = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		toStep, now(), id, workflow.StatusInProgress.String(), fromStep)
	if err != nil {
		r.logger.Error("Failed to advance instance", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to advance instance: %w", err)
	}

	return requireOneRow(result, "instance %d is no longer at step %d", id, fromStep)
}

// Close sets a terminal status on an in-progress instance
func (r *InstanceRepository) Close(ctx context.Context, id int64, status workflow.InstanceStatus, at time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", workflow.ErrValidation, status)
	}

	query := `
		UPDATE workflow_instances
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	at = at.UTC()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		status.String(), at, at, id, workflow.StatusInProgress.String())
	if err != nil {
		r.logger.Error("Failed to close instance",
			zap.Int64("id", id),
			zap.String("status", status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to close instance: %w", err)
	}

	return requireOneRow(result, "instance %d is already closed", id)
}

// ListPending retrieves in-progress instances joined with their current step
func (r *InstanceRepository) ListPending(ctx context.Context) ([]*entity.PendingAction, error) {
	query := `
		SELECT i.id, i.workflow_id, i.entity_type, i.entity_id, i.current_step, i.status,
			i.initiated_by, i.created_at, i.updated_at, i.completed_at,
			s.id, s.workflow_id, s.step_order, s.name, s.approval_type,
			s.approver_roles, s.conditions, s.created_at
		FROM workflow_instances i
		JOIN workflow_steps s ON s.workflow_id = i.workflow_id AND s.step_order = i.current_step
		WHERE i.status = ?
		ORDER BY i.created_at ASC, i.id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, workflow.StatusInProgress.String())
	if err != nil {
		r.logger.Error("Failed to list pending instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending instances: %w", err)
	}
	defer rows.Close()

	var pending []*entity.PendingAction
	for rows.Next() {
		var instance entity.WorkflowInstance
		var step entity.WorkflowStep
		var status, approvalType, roles string
		var completedAt sql.NullTime
		var conditions sql.NullString

		if err := rows.Scan(
			&instance.ID,
			&instance.WorkflowID,
			&instance.EntityType,
			&instance.EntityID,
			&instance.CurrentStep,
			&status,
			&instance.InitiatedBy,
			&instance.CreatedAt,
			&instance.UpdatedAt,
			&completedAt,
			&step.ID,
			&step.WorkflowID,
			&step.StepOrder,
			&step.Name,
			&approvalType,
			&roles,
			&conditions,
			&step.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending instance: %w", err)
		}

		instance.Status = workflow.InstanceStatus(status)
		instance.CompletedAt = timePtr(completedAt)
		step.ApprovalType = workflow.ApprovalType(approvalType)
		if step.ApproverRoles, err = decodeStrings(roles); err != nil {
			return nil, err
		}
		if step.Conditions, err = decodeMap(conditions); err != nil {
			return nil, err
		}

		pending = append(pending, &entity.PendingAction{Instance: &instance, Step: &step})
	}

	return pending, rows.Err()
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var status string
	var completedAt sql.NullTime

	if err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.CurrentStep,
		&status,
		&instance.InitiatedBy,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	instance.Status = workflow.InstanceStatus(status)
	instance.CompletedAt = timePtr(completedAt)
	return &instance, nil
}

// requireOneRow turns a compare-and-set update that matched nothing into a state violation
func requireOneRow(result sql.Result, format string, args ...any) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrStateViolation, fmt.Sprintf(format, args...))
	}
	return nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
