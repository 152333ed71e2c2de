package service

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	applicant = actor("stu-1", "APPLICANT")
	officer   = actor("off-1", "ADMISSIONS")
	panelist  = actor("fac-1", "FACULTY")
	cashier   = actor("fin-1", "FINANCE")
)

func admissionSteps() []StepInput {
	return []StepInput{
		{Order: 1, Name: "Screening", ApproverRoles: []string{"ADMISSIONS"}},
		{Order: 2, Name: "Interview Panel", ApproverRoles: []string{"FACULTY"}},
	}
}

// submitted returns an UNDER_REVIEW application with its review instance
func submitted(t *testing.T, h *harness) (*entity.AdmissionApplication, *entity.WorkflowInstance) {
	t.Helper()
	ctx := context.Background()

	draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
	require.NoError(t, err)
	app, instance, err := h.admission.Submit(ctx, draft.ID, applicant)
	require.NoError(t, err)
	return app, instance
}

// selected drives the review workflow to completion and returns the SELECTED
// application with its closed instance
func selected(t *testing.T, h *harness) (*entity.AdmissionApplication, *entity.WorkflowInstance) {
	t.Helper()
	ctx := context.Background()

	app, instance := submitted(t, h)
	_, err := h.workflows.PerformAction(ctx, instance.ID, schedule(time.Date(2026, 11, 3, 10, 0, 0, 0, time.UTC)), officer)
	require.NoError(t, err)
	_, err = h.admission.AssignPanel(ctx, app.ID, []string{panelist.ID}, officer)
	require.NoError(t, err)
	result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), panelist)
	require.NoError(t, err)
	require.True(t, result.Closed)

	app, err = h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, admission.StatusSelected, app.Status)
	return app, result.Instance
}

func schedule(at time.Time) ActionRequest {
	return ActionRequest{
		Action:  workflow.ActionSchedule,
		Payload: map[string]any{PayloadInterviewAt: at.Format(time.RFC3339)},
	}
}

func TestAdmissionService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to under review and starts the workflow", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, entity.EntityTypeAdmission, admissionSteps()...)

		app, instance := submitted(t, h)
		assert.Equal(t, admission.StatusUnderReview, app.Status)
		require.NotNil(t, app.StatusDueAt)
		assert.Equal(t, entity.EntityTypeAdmission, instance.EntityType)

		history, err := h.admission.History(ctx, app.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, admission.StatusDraft, history[0].FromStatus)
		assert.Equal(t, admission.StatusSubmitted, history[0].ToStatus)
		assert.Equal(t, admission.TableVersion, history[1].Metadata["table_version"])
	})

	t.Run("rolls back when no review workflow is defined", func(t *testing.T) {
		h := newHarness(t)
		draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
		require.NoError(t, err)

		_, _, err = h.admission.Submit(ctx, draft.ID, applicant)
		assert.ErrorIs(t, err, workflow.ErrNotFound)

		app, err := h.admission.Get(ctx, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.StatusDraft, app.Status)
		history, err := h.admission.History(ctx, draft.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("only the applicant may submit", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
		draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
		require.NoError(t, err)

		_, _, err = h.admission.Submit(ctx, draft.ID, officer)
		assert.ErrorIs(t, err, workflow.ErrForbidden)
	})
}

func TestAdmissionService_TransitionGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)

	draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
	require.NoError(t, err)

	_, err = h.admission.Transition(ctx, draft.ID, admission.StatusSeatAllocated, officer, nil)
	assert.ErrorIs(t, err, workflow.ErrStateViolation)

	_, err = h.admission.Transition(ctx, draft.ID, admission.Status("ENROLLED"), officer, nil)
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = h.admission.Transition(ctx, 404, admission.StatusSubmitted, officer, nil)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	app, err := h.admission.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusDraft, app.Status)
}

func TestAdmissionService_SeatPrerequisites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)

	app, _ := selected(t, h)
	_, err := h.admission.AcceptOffer(ctx, app.ID, applicant)
	require.NoError(t, err)

	// the gate is called directly, bypassing AllocateSeat
	_, err = h.admission.Transition(ctx, app.ID, admission.StatusSeatAllocated, officer, nil)
	assert.ErrorIs(t, err, workflow.ErrPrerequisiteViolation)

	_, err = h.admission.VerifyDocuments(ctx, app.ID, officer)
	require.NoError(t, err)
	_, err = h.admission.AllocateSeat(ctx, app.ID, officer)
	assert.ErrorIs(t, err, workflow.ErrPrerequisiteViolation, "payment still missing")

	payment, created, err := h.admission.InitiatePayment(ctx, app.ID, 50_000, "usd", applicant)
	require.NoError(t, err)
	require.True(t, created)
	_, err = h.admission.AllocateSeat(ctx, app.ID, officer)
	assert.ErrorIs(t, err, workflow.ErrPrerequisiteViolation, "pending payment is not completed")

	_, err = h.admission.CompletePayment(ctx, payment.ID, cashier)
	require.NoError(t, err)

	allocated, err := h.admission.AllocateSeat(ctx, app.ID, officer)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusSeatAllocated, allocated.Status)
	assert.Nil(t, allocated.StatusDueAt)

	_, err = h.admission.Cancel(ctx, app.ID, "changed mind", applicant)
	assert.ErrorIs(t, err, workflow.ErrStateViolation)
}

func TestAdmissionService_InitiatePayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)

	draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
	require.NoError(t, err)
	_, _, err = h.admission.InitiatePayment(ctx, draft.ID, 50_000, "USD", applicant)
	assert.ErrorIs(t, err, workflow.ErrStateViolation)

	app, _ := submitted(t, h)

	tests := []struct {
		name     string
		amount   int64
		currency string
	}{
		{"zero amount", 0, "USD"},
		{"bad currency", 50_000, "DOLLARS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.admission.InitiatePayment(ctx, app.ID, tt.amount, tt.currency, applicant)
			assert.ErrorIs(t, err, workflow.ErrValidation)
		})
	}

	first, created, err := h.admission.InitiatePayment(ctx, app.ID, 50_000, "usd", applicant)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, entity.PaymentStatusPending, first.Status)
	assert.Contains(t, first.Reference, "adm-")

	again, created, err := h.admission.InitiatePayment(ctx, app.ID, 75_000, "USD", applicant)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(50_000), again.AmountCents)

	_, err = h.admission.CompletePayment(ctx, first.ID, cashier)
	require.NoError(t, err)
	_, err = h.admission.CompletePayment(ctx, first.ID, cashier)
	assert.ErrorIs(t, err, workflow.ErrStateViolation)

	_, _, err = h.admission.InitiatePayment(ctx, app.ID, 50_000, "USD", applicant)
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

func TestAdmissionService_VerifyDocumentsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)

	draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
	require.NoError(t, err)
	_, err = h.admission.VerifyDocuments(ctx, draft.ID, officer)
	assert.ErrorIs(t, err, workflow.ErrStateViolation)

	app, _ := submitted(t, h)
	first, err := h.admission.VerifyDocuments(ctx, app.ID, officer)
	require.NoError(t, err)
	assert.True(t, first.DocumentsVerified)
	assert.Equal(t, officer.ID, first.DocumentsVerifiedBy)

	second, err := h.admission.VerifyDocuments(ctx, app.ID, actor("off-2", "ADMISSIONS"))
	require.NoError(t, err)
	assert.Equal(t, officer.ID, second.DocumentsVerifiedBy)
}

func TestAdmissionService_ReviewWorkflowDrivesLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, instance := submitted(t, h)

	_, err := h.workflows.PerformAction(ctx, instance.ID, ActionRequest{Action: workflow.ActionSchedule}, officer)
	assert.ErrorIs(t, err, workflow.ErrValidation, "interview time is required")

	interview := time.Date(2026, 11, 3, 10, 0, 0, 0, time.UTC)
	result, err := h.workflows.PerformAction(ctx, instance.ID, schedule(interview), officer)
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	scheduled, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusInterviewScheduled, scheduled.Status)
	require.NotNil(t, scheduled.InterviewAt)
	assert.True(t, interview.Equal(*scheduled.InterviewAt))

	// panel membership is required on the interview step
	_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), panelist)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = h.admission.AssignPanel(ctx, app.ID, []string{panelist.ID, " ", panelist.ID}, officer)
	require.NoError(t, err)

	result, err = h.workflows.PerformAction(ctx, instance.ID, approve(), panelist)
	require.NoError(t, err)
	assert.True(t, result.Closed)

	selected, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusSelected, selected.Status)
	assert.Equal(t, entity.OfferLetterReady, selected.OfferLetterStatus)
	assert.Equal(t, []string{panelist.ID}, selected.InterviewPanel)

	history, err := h.admission.History(ctx, app.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "system:workflow", last.ActorID)
}

func TestAdmissionService_RejectedReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, instance := submitted(t, h)

	_, err := h.workflows.PerformAction(ctx, instance.ID, reject(), officer)
	require.NoError(t, err)

	rejected, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusRejected, rejected.Status)
	assert.Equal(t, entity.OfferLetterNone, rejected.OfferLetterStatus)
}

func TestAdmissionService_CancelDuringReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, instance := submitted(t, h)

	cancelled, err := h.admission.Cancel(ctx, app.ID, "withdrawn", applicant)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusCancelled, cancelled.Status)

	// closing the orphaned review leaves the cancelled application alone
	_, err = h.workflows.PerformAction(ctx, instance.ID, reject(), officer)
	require.NoError(t, err)

	after, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusCancelled, after.Status)

	history, err := h.admission.History(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "withdrawn", history[len(history)-1].Metadata["reason"])
}

func TestAdmissionService_AcceptOfferByApplicantOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, _ := selected(t, h)

	_, err := h.admission.AcceptOffer(ctx, app.ID, officer)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	accepted, err := h.admission.AcceptOffer(ctx, app.ID, applicant)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusOfferAccepted, accepted.Status)
}

func TestAdmissionService_ExcludedRole(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.admission.CreateDraft(ctx, "PhD Physics", actor("aud-1", "AUDITOR"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	draft, err := h.admission.CreateDraft(ctx, "PhD Physics", applicant)
	require.NoError(t, err)
	_, err = h.admission.Cancel(ctx, draft.ID, "", actor("aud-1", "AUDITOR"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestAdmissionService_ApplicantCannotDriveOwnLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, instance := submitted(t, h)

	for _, to := range []admission.Status{
		admission.StatusSubmitted,
		admission.StatusInterviewScheduled,
		admission.StatusSelected,
		admission.StatusRejected,
	} {
		_, err := h.admission.Transition(ctx, app.ID, to, applicant, nil)
		assert.ErrorIs(t, err, workflow.ErrForbidden, "applicant entering %s", to)

		// staff cannot bypass the review workflow either
		_, err = h.admission.Transition(ctx, app.ID, to, officer, nil)
		assert.ErrorIs(t, err, workflow.ErrForbidden, "registrar entering %s", to)
	}

	_, err := h.admission.AssignPanel(ctx, app.ID, []string{applicant.ID}, applicant)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = h.admission.VerifyDocuments(ctx, app.ID, applicant)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	payment, created, err := h.admission.InitiatePayment(ctx, app.ID, 50_000, "USD", applicant)
	require.NoError(t, err)
	require.True(t, created)
	_, err = h.admission.CompletePayment(ctx, payment.ID, applicant)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = h.admission.CompletePayment(ctx, payment.ID, officer)
	assert.ErrorIs(t, err, workflow.ErrForbidden, "payments are confirmed by finance")

	_, err = h.admission.AllocateSeat(ctx, app.ID, applicant)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	after, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusUnderReview, after.Status)
	assert.False(t, after.DocumentsVerified)
	assert.Empty(t, after.InterviewPanel)

	view, err := h.workflows.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusInProgress, view.Instance.Status)
	assert.Equal(t, 1, view.Instance.CurrentStep)
}

func TestAdmissionService_PaymentOnBehalfOfApplicant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, _ := submitted(t, h)

	_, _, err := h.admission.InitiatePayment(ctx, app.ID, 50_000, "USD", actor("stu-2", "APPLICANT"))
	assert.ErrorIs(t, err, workflow.ErrForbidden, "another applicant")

	_, _, err = h.admission.InitiatePayment(ctx, app.ID, 50_000, "USD", officer)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	payment, created, err := h.admission.InitiatePayment(ctx, app.ID, 50_000, "USD", cashier)
	require.NoError(t, err)
	assert.True(t, created)

	completed, err := h.admission.CompletePayment(ctx, payment.ID, actor("adm-1", "ADMIN"))
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusCompleted, completed.Status)
}

func TestAdmissionService_StaffCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, _ := submitted(t, h)

	_, err := h.admission.Cancel(ctx, app.ID, "", actor("stu-2", "APPLICANT"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	cancelled, err := h.admission.Cancel(ctx, app.ID, "duplicate", officer)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusCancelled, cancelled.Status)
}

func TestAdmissionService_CancelledApplicationGetsNoOfferLetter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeAdmission, admissionSteps()...)
	app, instance := submitted(t, h)

	_, err := h.admission.Cancel(ctx, app.ID, "withdrawn", applicant)
	require.NoError(t, err)

	_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), officer)
	require.NoError(t, err)
	closed, err := h.workflows.CloseWorkflow(ctx, instance.ID, workflow.StatusApproved, actor("adm-1", "ADMIN"))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, closed.Status)

	after, err := h.admission.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusCancelled, after.Status)
	assert.Equal(t, entity.OfferLetterNone, after.OfferLetterStatus)
}
