package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// PaymentRepository implements port.PaymentRepository
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) port.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

const paymentColumns = `id, application_id, amount_cents, currency, status, reference, created_at, completed_at`

// Create inserts a payment. A second pending payment for the same
// application violates the partial unique index and maps to ErrConflict.
func (r *PaymentRepository) Create(ctx context.Context, payment *entity.AdmissionPayment) error {
	query := `
		INSERT INTO admission_payments (
			application_id, amount_cents, currency, status, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	if payment.Status == "" {
		payment.Status = entity.PaymentStatusPending
	}

	createdAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		payment.ApplicationID,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.Reference,
		createdAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return sqlite.MapConflict(err, "payment already pending for application %d", payment.ApplicationID)
		}
		r.logger.Error("Failed to create payment",
			zap.Int64("application_id", payment.ApplicationID),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	payment.ID = id
	payment.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*entity.AdmissionPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM admission_payments WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// FindUnresolved retrieves the pending payment of an application
func (r *PaymentRepository) FindUnresolved(ctx context.Context, applicationID int64) (*entity.AdmissionPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM admission_payments
		WHERE application_id = ? AND status = ?`
	return r.getOne(ctx, query, applicationID, entity.PaymentStatusPending)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...any) (*entity.AdmissionPayment, error) {
	var payment entity.AdmissionPayment
	var completedAt sql.NullTime

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&payment.ID,
		&payment.ApplicationID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Status,
		&payment.Reference,
		&payment.CreatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment", zap.Any("args", args), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	payment.CompletedAt = timePtr(completedAt)
	return &payment, nil
}

// HasCompleted reports whether any payment of the application completed
func (r *PaymentRepository) HasCompleted(ctx context.Context, applicationID int64) (bool, error) {
	var count int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admission_payments WHERE application_id = ? AND status = ?`,
		applicationID, entity.PaymentStatusCompleted,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check completed payments: %w", err)
	}
	return count > 0, nil
}

// Complete marks a pending payment completed
func (r *PaymentRepository) Complete(ctx context.Context, id int64, at time.Time) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE admission_payments SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, entity.PaymentStatusCompleted, at.UTC(), id, entity.PaymentStatusPending)
	if err != nil {
		r.logger.Error("Failed to complete payment", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to complete payment: %w", err)
	}

	return requireOneRow(result, "payment %d is not pending", id)
}

// Verify interface compliance
var _ port.PaymentRepository = (*PaymentRepository)(nil)
