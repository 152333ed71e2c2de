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

// LeaveRepository implements port.LeaveRepository
type LeaveRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLeaveRepository creates a new leave repository
func NewLeaveRepository(db *sql.DB, logger *zap.Logger) port.LeaveRepository {
	return &LeaveRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a leave request
func (r *LeaveRepository) Create(ctx context.Context, req *entity.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (
			employee_id, leave_type, days, start_date, end_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if req.Status == "" {
		req.Status = entity.LeaveStatusPending
	}

	ts := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		req.EmployeeID,
		req.LeaveType,
		req.Days,
		req.StartDate.UTC(),
		req.EndDate.UTC(),
		req.Status,
		ts,
		ts,
	)
	if err != nil {
		r.logger.Error("Failed to create leave request",
			zap.String("employee_id", req.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create leave request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.CreatedAt = ts
	req.UpdatedAt = ts
	return nil
}

// GetByID retrieves a leave request by ID
func (r *LeaveRepository) GetByID(ctx context.Context, id int64) (*entity.LeaveRequest, error) {
	query := `
		SELECT id, employee_id, leave_type, days, start_date, end_date, status, created_at, updated_at
		FROM leave_requests
		WHERE id = ?
	`

	var req entity.LeaveRequest
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.EmployeeID,
		&req.LeaveType,
		&req.Days,
		&req.StartDate,
		&req.EndDate,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get leave request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}

	return &req, nil
}

// UpdateStatus sets the leave request's own status
func (r *LeaveRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE leave_requests SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id)
	if err != nil {
		r.logger.Error("Failed to update leave status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update leave status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: leave request %d", workflow.ErrNotFound, id)
	}
	return nil
}

// SumDays totals the days of an employee's requests in a status for the year they start in
func (r *LeaveRepository) SumDays(ctx context.Context, employeeID string, year int, status string) (int, error) {
	var total int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(days), 0) FROM leave_requests
		WHERE employee_id = ? AND status = ? AND CAST(substr(start_date, 1, 4) AS INTEGER) = ?
	`, employeeID, status, year).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum leave days: %w", err)
	}
	return total, nil
}

// UpsertBalance writes the used days for an employee and year
func (r *LeaveRepository) UpsertBalance(ctx context.Context, balance *entity.LeaveBalance) error {
	ts := now()
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, year, used_days, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (employee_id, year) DO UPDATE SET
			used_days = excluded.used_days,
			updated_at = excluded.updated_at
	`, balance.EmployeeID, balance.Year, balance.UsedDays, ts)
	if err != nil {
		r.logger.Error("Failed to upsert leave balance",
			zap.String("employee_id", balance.EmployeeID),
			zap.Int("year", balance.Year),
			zap.Error(err))
		return fmt.Errorf("failed to upsert leave balance: %w", err)
	}

	balance.UpdatedAt = ts
	return nil
}

// GetBalance retrieves the balance of an employee for a year
func (r *LeaveRepository) GetBalance(ctx context.Context, employeeID string, year int) (*entity.LeaveBalance, error) {
	var balance entity.LeaveBalance
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT employee_id, year, used_days, updated_at
		FROM leave_balances
		WHERE employee_id = ? AND year = ?
	`, employeeID, year).Scan(
		&balance.EmployeeID,
		&balance.Year,
		&balance.UsedDays,
		&balance.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave balance: %w", err)
	}
	return &balance, nil
}

// Verify interface compliance
var _ port.LeaveRepository = (*LeaveRepository)(nil)
