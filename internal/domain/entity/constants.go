package entity

// Entity types known to the workflow engine
const (
	EntityTypeAdmission = "admission_application"
	EntityTypeLeave     = "leave_request"
)

// Payment status constants for AdmissionPayment
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Offer letter status constants for AdmissionApplication
const (
	OfferLetterNone  = "NONE"
	OfferLetterReady = "READY"
)

// Leave request status constants (the leave domain's own vocabulary)
const (
	LeaveStatusPending    = "PENDING"
	LeaveStatusSanctioned = "SANCTIONED"
	LeaveStatusDeclined   = "DECLINED"
)

// Audit actions written to the audit sink
const (
	AuditWorkflowInitiated    = "WORKFLOW_INITIATED"
	AuditWorkflowAction       = "WORKFLOW_ACTION"
	AuditWorkflowClosed       = "WORKFLOW_CLOSED"
	AuditDefinitionCreated    = "WORKFLOW_DEFINITION_CREATED"
	AuditStepsAdded           = "WORKFLOW_STEPS_ADDED"
	AuditDefinitionDeactivate = "WORKFLOW_DEFINITION_DEACTIVATED"
	AuditAdmissionTransition  = "ADMISSION_TRANSITION"
	AuditPaymentInitiated     = "ADMISSION_PAYMENT_INITIATED"
	AuditPaymentCompleted     = "ADMISSION_PAYMENT_COMPLETED"
	AuditDocumentsVerified    = "ADMISSION_DOCUMENTS_VERIFIED"
	AuditPanelAssigned        = "ADMISSION_PANEL_ASSIGNED"
)
