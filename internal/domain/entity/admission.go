package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/admission"
)

// AdmissionApplication is a research-programme admission application.
// Status is written only by the transition gate.
type AdmissionApplication struct {
	ID                  int64            `json:"id"`
	ApplicantID         string           `json:"applicant_id"`
	Program             string           `json:"program"`
	Status              admission.Status `json:"status"`
	StatusDueAt         *time.Time       `json:"status_due_at,omitempty"`
	InterviewAt         *time.Time       `json:"interview_at,omitempty"`
	InterviewPanel      []string         `json:"interview_panel"`
	DocumentsVerified   bool             `json:"documents_verified"`
	DocumentsVerifiedBy string           `json:"documents_verified_by,omitempty"`
	DocumentsVerifiedAt *time.Time       `json:"documents_verified_at,omitempty"`
	OfferLetterStatus   string           `json:"offer_letter_status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// OnPanel returns true if userID is listed on the interview panel
func (a *AdmissionApplication) OnPanel(userID string) bool {
	for _, id := range a.InterviewPanel {
		if id == userID {
			return true
		}
	}
	return false
}

// AdmissionStatusChange is one row of the application's transition history
type AdmissionStatusChange struct {
	ID            int64            `json:"id"`
	ApplicationID int64            `json:"application_id"`
	FromStatus    admission.Status `json:"from_status"`
	ToStatus      admission.Status `json:"to_status"`
	ActorID       string           `json:"actor_id"`
	DueAt         *time.Time       `json:"due_at,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AdmissionPayment is an admission fee payment
type AdmissionPayment struct {
	ID            int64      `json:"id"`
	ApplicationID int64      `json:"application_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
