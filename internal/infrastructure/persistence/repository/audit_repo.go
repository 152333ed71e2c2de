package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// LogAction appends an audit entry
func (r *AuditRepository) LogAction(ctx context.Context, entry *entity.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, entity, entity_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	metadata, err := encodeJSON(entry.Metadata)
	if err != nil {
		return err
	}

	createdAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.UserID,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		metadata,
		createdAt,
	)
	if err != nil {
		r.logger.Error("Failed to write audit log",
			zap.String("action", entry.Action),
			zap.String("entity", entry.Entity),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = createdAt
	return nil
}

// ListByEntity retrieves the audit entries of one entity in recording order
func (r *AuditRepository) ListByEntity(ctx context.Context, entityName, entityID string) ([]*entity.AuditLog, error) {
	query := `
		SELECT id, user_id, action, entity, entity_id, metadata, created_at
		FROM audit_logs
		WHERE entity = ? AND entity_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, entityName, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit logs",
			zap.String("entity", entityName),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.AuditLog
	for rows.Next() {
		var entry entity.AuditLog
		var metadata sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Entity,
			&entry.EntityID,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if entry.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		logs = append(logs, &entry)
	}

	return logs, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
