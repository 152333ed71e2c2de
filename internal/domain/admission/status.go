package admission

// Status is the admission application's own lifecycle status. It is
// independent of the generic workflow instance status.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusSubmitted          Status = "SUBMITTED"
	StatusUnderReview        Status = "UNDER_REVIEW"
	StatusInterviewScheduled Status = "INTERVIEW_SCHEDULED"
	StatusSelected           Status = "SELECTED"
	StatusOfferAccepted      Status = "OFFER_ACCEPTED"
	StatusSeatAllocated      Status = "SEAT_ALLOCATED"
	StatusRejected           Status = "REJECTED"
	StatusCancelled          Status = "CANCELLED"
)

var validStatuses = map[Status]bool{
	StatusDraft:              true,
	StatusSubmitted:          true,
	StatusUnderReview:        true,
	StatusInterviewScheduled: true,
	StatusSelected:           true,
	StatusOfferAccepted:      true,
	StatusSeatAllocated:      true,
	StatusRejected:           true,
	StatusCancelled:          true,
}

var terminalStatuses = map[Status]bool{
	StatusSeatAllocated: true,
	StatusRejected:      true,
	StatusCancelled:     true,
}

// IsTerminal returns true if the status has no outgoing transitions
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status belongs to the admission vocabulary
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// Prerequisite names an upstream completion on a related record that must
// hold before a status may be entered.
type Prerequisite string

const (
	PrerequisiteDocumentsVerified Prerequisite = "DOCUMENTS_VERIFIED"
	PrerequisitePaymentCompleted  Prerequisite = "PAYMENT_COMPLETED"
)

// Facts is the state of the related records read inside the transition gate
type Facts struct {
	DocumentsVerified bool
	PaymentCompleted  bool
}

// Satisfies reports whether a prerequisite holds for these facts
func (f Facts) Satisfies(p Prerequisite) bool {
	switch p {
	case PrerequisiteDocumentsVerified:
		return f.DocumentsVerified
	case PrerequisitePaymentCompleted:
		return f.PaymentCompleted
	default:
		return false
	}
}
