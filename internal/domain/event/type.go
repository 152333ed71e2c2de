package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowInitiated       Type = "workflow.initiated"
	TypeWorkflowActionRecorded  Type = "workflow.action_recorded"
	TypeWorkflowClosed          Type = "workflow.closed"
	TypeAdmissionTransitioned   Type = "admission.transitioned"
	TypeAdmissionPaymentStarted Type = "admission.payment_initiated"
	TypeAdmissionSLABreached    Type = "admission.sla_breached"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowInitiated,
		TypeWorkflowActionRecorded,
		TypeWorkflowClosed,
		TypeAdmissionTransitioned,
		TypeAdmissionPaymentStarted,
		TypeAdmissionSLABreached:
		return true
	default:
		return false
	}
}
