package port

import (
	"context"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Repositories return (nil, nil) when a row does not exist. Mutations that
// guard on the current state return workflow.ErrStateViolation when the
// guard no longer holds.

// DefinitionRepository is the Definition Catalog store
type DefinitionRepository interface {
	// Create inserts a definition; ID and CreatedAt are populated
	Create(ctx context.Context, def *entity.WorkflowDefinition) error

	// GetByID retrieves a definition without its steps
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)

	// GetActiveByEntityType retrieves the single active definition for an entity type
	GetActiveByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error)

	// NextVersion returns the version number for a new definition of an entity type
	NextVersion(ctx context.Context, entityType string) (int, error)

	// DeactivateByEntityType clears the active flag of every definition of an entity type
	DeactivateByEntityType(ctx context.Context, entityType string) error

	// Deactivate clears the active flag of one definition
	Deactivate(ctx context.Context, id int64) error

	// AddStep appends a step; ID and CreatedAt are populated
	AddStep(ctx context.Context, step *entity.WorkflowStep) error

	// GetStep retrieves the step with the given order
	GetStep(ctx context.Context, workflowID int64, stepOrder int) (*entity.WorkflowStep, error)

	// GetNextStep retrieves the lowest-ordered step after afterOrder
	GetNextStep(ctx context.Context, workflowID int64, afterOrder int) (*entity.WorkflowStep, error)

	// ListSteps retrieves all steps ordered by step_order
	ListSteps(ctx context.Context, workflowID int64) ([]*entity.WorkflowStep, error)
}

// InstanceRepository is the Instance Store
type InstanceRepository interface {
	// Create inserts an instance; returns workflow.ErrConflict when an
	// in-progress instance already exists for the entity
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// FindActive retrieves the in-progress instance for an entity
	FindActive(ctx context.Context, entityType, entityID string) (*entity.WorkflowInstance, error)

	// AdvanceStep moves an in-progress instance from fromStep to toStep
	AdvanceStep(ctx context.Context, id int64, fromStep, toStep int) error

	// Close sets a terminal status on an in-progress instance
	Close(ctx context.Context, id int64, status workflow.InstanceStatus, at time.Time) error

	// ListPending retrieves in-progress instances joined with their current step
	ListPending(ctx context.Context) ([]*entity.PendingAction, error)
}

// ActionRepository is the append-only action log
type ActionRepository interface {
	Append(ctx context.Context, action *entity.WorkflowAction) error
	ListForStep(ctx context.Context, instanceID, stepID int64) ([]*entity.WorkflowAction, error)
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowAction, error)
}

// AuditRepository is the audit sink
type AuditRepository interface {
	LogAction(ctx context.Context, entry *entity.AuditLog) error
	ListByEntity(ctx context.Context, entityName, entityID string) ([]*entity.AuditLog, error)
}

// TransitionRequest is the input of the atomic transition routine
type TransitionRequest struct {
	ApplicationID int64
	From          admission.Status
	To            admission.Status
	ActorID       string
	DueAt         *time.Time
	Metadata      map[string]any
	At            time.Time
}

// ApplicationRepository persists admission applications
type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.AdmissionApplication) error
	GetByID(ctx context.Context, id int64) (*entity.AdmissionApplication, error)

	// AtomicTransition writes the status, deadline and history row if the
	// stored status still equals req.From
	AtomicTransition(ctx context.Context, req TransitionRequest) (*entity.AdmissionApplication, error)

	SetInterview(ctx context.Context, id int64, at time.Time) error
	SetPanel(ctx context.Context, id int64, panel []string) error
	MarkDocumentsVerified(ctx context.Context, id int64, verifiedBy string, at time.Time) error
	SetOfferLetterStatus(ctx context.Context, id int64, status string) error
	ListHistory(ctx context.Context, id int64) ([]*entity.AdmissionStatusChange, error)

	// ListOverdue returns applications past their status deadline whose breach is unreported
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.AdmissionApplication, error)
	// MarkSLABreachReported flags the breach if the application is still in status
	MarkSLABreachReported(ctx context.Context, id int64, status admission.Status, at time.Time) (bool, error)
}

// PaymentRepository persists admission fee payments
type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.AdmissionPayment) error
	GetByID(ctx context.Context, id int64) (*entity.AdmissionPayment, error)

	// FindUnresolved retrieves the pending payment of an application
	FindUnresolved(ctx context.Context, applicationID int64) (*entity.AdmissionPayment, error)

	// HasCompleted reports whether any payment of the application completed
	HasCompleted(ctx context.Context, applicationID int64) (bool, error)

	// Complete marks a pending payment completed
	Complete(ctx context.Context, id int64, at time.Time) error
}

// LeaveRepository persists leave requests and balances
type LeaveRepository interface {
	Create(ctx context.Context, req *entity.LeaveRequest) error
	GetByID(ctx context.Context, id int64) (*entity.LeaveRequest, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	SumDays(ctx context.Context, employeeID string, year int, status string) (int, error)
	UpsertBalance(ctx context.Context, balance *entity.LeaveBalance) error
	GetBalance(ctx context.Context, employeeID string, year int) (*entity.LeaveBalance, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
