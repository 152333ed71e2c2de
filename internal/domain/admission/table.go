package admission

// TableVersion identifies the transition table below. Bump it whenever the
// table changes; it is stored with every recorded transition.
const TableVersion = "admission/v2"

// NewTable returns the admission application transition table
func NewTable() *Table {
	b := NewBuilder()

	b.Configure(StatusDraft).
		Permit(StatusSubmitted, StatusCancelled)

	b.Configure(StatusSubmitted).
		Permit(StatusUnderReview, StatusCancelled).
		WithSLA(3)

	b.Configure(StatusUnderReview).
		Permit(StatusInterviewScheduled, StatusRejected, StatusCancelled).
		WithSLA(14)

	b.Configure(StatusInterviewScheduled).
		Permit(StatusSelected, StatusRejected, StatusCancelled).
		WithSLA(21)

	b.Configure(StatusSelected).
		Permit(StatusOfferAccepted, StatusCancelled).
		WithSLA(7)

	b.Configure(StatusOfferAccepted).
		Permit(StatusSeatAllocated, StatusCancelled).
		WithSLA(15)

	// Seat allocation is irreversible
	b.Configure(StatusSeatAllocated).
		Require(PrerequisiteDocumentsVerified, PrerequisitePaymentCompleted)

	return b.Build(TableVersion)
}
