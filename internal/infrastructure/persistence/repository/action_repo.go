package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ActionRepository implements port.ActionRepository.
// Rows are append-only; triggers reject updates and deletes.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) port.ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

const actionColumns = `id, instance_id, step_id, actor_id, actor_role, action, remarks, payload, created_at`

// Append records an action
func (r *ActionRepository) Append(ctx context.Context, action *entity.WorkflowAction) error {
	query := `
		INSERT INTO workflow_actions (
			instance_id, step_id, actor_id, actor_role, action, remarks, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload, err := encodeJSON(action.Payload)
	if err != nil {
		return err
	}

	createdAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		action.InstanceID,
		action.StepID,
		action.ActorID,
		action.ActorRole,
		action.Action.String(),
		action.Remarks,
		payload,
		createdAt,
	)
	if err != nil {
		r.logger.Error("Failed to append action",
			zap.Int64("instance_id", action.InstanceID),
			zap.String("action", action.Action.String()),
			zap.Error(err))
		return fmt.Errorf("failed to append action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	action.ID = id
	action.CreatedAt = createdAt
	return nil
}

// ListForStep retrieves the actions recorded against one step of an instance
func (r *ActionRepository) ListForStep(ctx context.Context, instanceID, stepID int64) ([]*entity.WorkflowAction, error) {
	query := `SELECT ` + actionColumns + ` FROM workflow_actions
		WHERE instance_id = ? AND step_id = ? ORDER BY id ASC`
	return r.list(ctx, query, instanceID, stepID)
}

// ListByInstance retrieves every action of an instance in recording order
func (r *ActionRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowAction, error) {
	query := `SELECT ` + actionColumns + ` FROM workflow_actions
		WHERE instance_id = ? ORDER BY id ASC`
	return r.list(ctx, query, instanceID)
}

func (r *ActionRepository) list(ctx context.Context, query string, args ...any) ([]*entity.WorkflowAction, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list actions", zap.Any("args", args), zap.Error(err))
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*entity.WorkflowAction
	for rows.Next() {
		var action entity.WorkflowAction
		var kind string
		var payload sql.NullString

		if err := rows.Scan(
			&action.ID,
			&action.InstanceID,
			&action.StepID,
			&action.ActorID,
			&action.ActorRole,
			&kind,
			&action.Remarks,
			&payload,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		action.Action = workflow.ActionType(kind)
		if action.Payload, err = decodeMap(payload); err != nil {
			return nil, err
		}
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
