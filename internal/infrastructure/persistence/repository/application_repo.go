package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new admission application repository
func NewApplicationRepository(db *sql.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

const applicationColumns = `id, applicant_id, program, status, status_due_at, interview_at,
	interview_panel, documents_verified, documents_verified_by, documents_verified_at,
	offer_letter_status, created_at, updated_at`

// Create inserts a new application in DRAFT
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.AdmissionApplication) error {
	query := `
		INSERT INTO admission_applications (
			applicant_id, program, status, interview_panel, offer_letter_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if app.Status == "" {
		app.Status = admission.StatusDraft
	}
	if app.OfferLetterStatus == "" {
		app.OfferLetterStatus = entity.OfferLetterNone
	}
	if app.InterviewPanel == nil {
		app.InterviewPanel = []string{}
	}
	panel, err := json.Marshal(app.InterviewPanel)
	if err != nil {
		return fmt.Errorf("failed to encode interview panel: %w", err)
	}

	ts := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		app.ApplicantID,
		app.Program,
		app.Status.String(),
		string(panel),
		app.OfferLetterStatus,
		ts,
		ts,
	)
	if err != nil {
		r.logger.Error("Failed to create application",
			zap.String("applicant_id", app.ApplicantID),
			zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	app.ID = id
	app.CreatedAt = ts
	app.UpdatedAt = ts
	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*entity.AdmissionApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications WHERE id = ?`

	app, err := scanApplication(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListOverdue retrieves applications whose status deadline passed before now
// and whose breach has not been reported, oldest deadline first
func (r *ApplicationRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.AdmissionApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications
		WHERE status_due_at IS NOT NULL AND status_due_at < ? AND sla_breach_reported_at IS NULL
		ORDER BY status_due_at ASC, id ASC
		LIMIT ?`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list overdue applications", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue applications: %w", err)
	}
	defer rows.Close()

	var apps []*entity.AdmissionApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// MarkSLABreachReported records that the overdue status was reported. It
// returns false when the application has since moved on or was already marked.
func (r *ApplicationRepository) MarkSLABreachReported(ctx context.Context, id int64, status admission.Status, at time.Time) (bool, error) {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE admission_applications
		SET sla_breach_reported_at = ?
		WHERE id = ? AND status = ? AND sla_breach_reported_at IS NULL
	`, at.UTC(), id, status.String())
	if err != nil {
		r.logger.Error("Failed to mark SLA breach", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark SLA breach: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func scanApplication(row rowScanner) (*entity.AdmissionApplication, error) {
	var app entity.AdmissionApplication
	var status, panel string
	var dueAt, interviewAt, verifiedAt sql.NullTime

	if err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&app.Program,
		&status,
		&dueAt,
		&interviewAt,
		&panel,
		&app.DocumentsVerified,
		&app.DocumentsVerifiedBy,
		&verifiedAt,
		&app.OfferLetterStatus,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}

	app.Status = admission.Status(status)
	app.StatusDueAt = timePtr(dueAt)
	app.InterviewAt = timePtr(interviewAt)
	app.DocumentsVerifiedAt = timePtr(verifiedAt)
	var err error
	if app.InterviewPanel, err = decodeStrings(panel); err != nil {
		return nil, err
	}
	return &app, nil
}

// AtomicTransition compares the stored status with req.From and, if it still
// matches, writes the new status, its deadline and a history row. Callers run
// it inside a transaction so the two writes commit together.
func (r *ApplicationRepository) AtomicTransition(ctx context.Context, req port.TransitionRequest) (*entity.AdmissionApplication, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	at := req.At.UTC()

	result, err := exec.ExecContext(ctx, `
		UPDATE admission_applications
		SET status = ?, status_due_at = ?, sla_breach_reported_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, req.To.String(), nullTime(req.DueAt), at, req.ApplicationID, req.From.String())
	if err != nil {
		r.logger.Error("Failed to transition application",
			zap.Int64("application_id", req.ApplicationID),
			zap.String("from", req.From.String()),
			zap.String("to", req.To.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to transition application: %w", err)
	}
	if err := requireOneRow(result, "application %d is no longer %s", req.ApplicationID, req.From); err != nil {
		return nil, err
	}

	metadata, err := encodeJSON(req.Metadata)
	if err != nil {
		return nil, err
	}

	if _, err := exec.ExecContext(ctx, `
		INSERT INTO admission_status_history (
			application_id, from_status, to_status, actor_id, due_at, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, req.ApplicationID, req.From.String(), req.To.String(), req.ActorID,
		nullTime(req.DueAt), metadata, at); err != nil {
		r.logger.Error("Failed to record status history",
			zap.Int64("application_id", req.ApplicationID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}

	return r.GetByID(ctx, req.ApplicationID)
}

// SetInterview stores the scheduled interview time
func (r *ApplicationRepository) SetInterview(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, "set interview",
		`UPDATE admission_applications SET interview_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), now(), id)
}

// SetPanel replaces the interview panel
func (r *ApplicationRepository) SetPanel(ctx context.Context, id int64, panel []string) error {
	if panel == nil {
		panel = []string{}
	}
	data, err := json.Marshal(panel)
	if err != nil {
		return fmt.Errorf("failed to encode interview panel: %w", err)
	}
	return r.update(ctx, "set panel",
		`UPDATE admission_applications SET interview_panel = ?, updated_at = ? WHERE id = ?`,
		string(data), now(), id)
}

// MarkDocumentsVerified records the verifying officer
func (r *ApplicationRepository) MarkDocumentsVerified(ctx context.Context, id int64, verifiedBy string, at time.Time) error {
	return r.update(ctx, "mark documents verified", `
		UPDATE admission_applications
		SET documents_verified = 1, documents_verified_by = ?, documents_verified_at = ?, updated_at = ?
		WHERE id = ?
	`, verifiedBy, at.UTC(), now(), id)
}

// SetOfferLetterStatus updates the offer letter status
func (r *ApplicationRepository) SetOfferLetterStatus(ctx context.Context, id int64, status string) error {
	return r.update(ctx, "set offer letter status",
		`UPDATE admission_applications SET offer_letter_status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id)
}

func (r *ApplicationRepository) update(ctx context.Context, op, query string, args ...any) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update application", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: application", workflow.ErrNotFound)
	}
	return nil
}

// ListHistory retrieves the transition history of an application, oldest first
func (r *ApplicationRepository) ListHistory(ctx context.Context, id int64) ([]*entity.AdmissionStatusChange, error) {
	query := `
		SELECT id, application_id, from_status, to_status, actor_id, due_at, metadata, created_at
		FROM admission_status_history
		WHERE application_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to list status history", zap.Int64("application_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	var history []*entity.AdmissionStatusChange
	for rows.Next() {
		var change entity.AdmissionStatusChange
		var from, to string
		var dueAt sql.NullTime
		var metadata sql.NullString

		if err := rows.Scan(
			&change.ID,
			&change.ApplicationID,
			&from,
			&to,
			&change.ActorID,
			&dueAt,
			&metadata,
			&change.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}

		change.FromStatus = admission.Status(from)
		change.ToStatus = admission.Status(to)
		change.DueAt = timePtr(dueAt)
		if change.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		history = append(history, &change)
	}

	return history, rows.Err()
}

// Verify interface compliance
var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
