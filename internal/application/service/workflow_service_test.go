package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thesis = "thesis_review"

func sequentialSteps() []StepInput {
	return []StepInput{
		{Order: 1, Name: "Supervisor", ApprovalType: "SEQUENTIAL", ApproverRoles: []string{"R1"}},
		{Order: 2, Name: "Committee", ApprovalType: "SEQUENTIAL", ApproverRoles: []string{"R2"}},
	}
}

func TestWorkflowService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("no active definition", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("definition without steps", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.catalog.CreateDefinition(ctx, "empty", "test", thesis, "admin")
		require.NoError(t, err)

		_, err = h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("starts at the first step", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, sequentialSteps()...)

		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)
		assert.Equal(t, 1, instance.CurrentStep)
		assert.Equal(t, workflow.StatusInProgress, instance.Status)
		assert.Equal(t, "u1", instance.InitiatedBy)
	})

	t.Run("second initiate on the same entity conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, sequentialSteps()...)

		_, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		_, err = h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		assert.ErrorIs(t, err, workflow.ErrConflict)

		_, err = h.workflows.Initiate(ctx, thesis, "2", actor("u1", "STUDENT"))
		assert.NoError(t, err)
	})

	t.Run("concurrent initiates yield one instance", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, sequentialSteps()...)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = h.workflows.Initiate(ctx, thesis, "race", actor("u1", "STUDENT"))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, workflow.ErrConflict)
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestWorkflowService_SequentialSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)

	instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)

	result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a", "R1"))
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.False(t, result.Closed)
	assert.Equal(t, 2, result.Instance.CurrentStep)
	assert.Equal(t, workflow.StatusInProgress, result.Instance.Status)

	// R1 no longer approves at step 2
	_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a", "R1"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	result, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("b", "R2"))
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.Equal(t, workflow.StatusApproved, result.Instance.Status)

	view, err := h.workflows.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, view.Instance.Status)
	assert.NotNil(t, view.Instance.CompletedAt)
	assert.Len(t, view.Actions, 2)
}

func TestWorkflowService_TerminalInstancesRejectActions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)

	for _, final := range []ActionRequest{approve(), reject()} {
		instance, err := h.workflows.Initiate(ctx, thesis, string(final.Action), actor("u1", "STUDENT"))
		require.NoError(t, err)

		if final.Action == workflow.ActionApprove {
			_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a", "R1"))
			require.NoError(t, err)
			_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("b", "R2"))
		} else {
			_, err = h.workflows.PerformAction(ctx, instance.ID, reject(), actor("a", "R1"))
		}
		require.NoError(t, err)

		for _, next := range []ActionRequest{approve(), reject()} {
			_, err = h.workflows.PerformAction(ctx, instance.ID, next, actor("b", "R2"))
			assert.ErrorIs(t, err, workflow.ErrStateViolation)
		}
		_, err = h.workflows.CloseWorkflow(ctx, instance.ID, workflow.StatusRejected, actor("root", "ADMIN"))
		assert.ErrorIs(t, err, workflow.ErrStateViolation)
	}
}

func TestWorkflowService_ParallelQuorum(t *testing.T) {
	ctx := context.Background()
	parallel := []StepInput{
		{Order: 1, Name: "Board", ApprovalType: "PARALLEL", ApproverRoles: []string{"DEAN", "HOD"}},
		{Order: 2, Name: "Registrar", ApprovalType: "SEQUENTIAL", ApproverRoles: []string{"REGISTRAR"}},
	}

	t.Run("advances only after every role approved", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, parallel...)
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a1", "DEAN"))
		require.NoError(t, err)
		assert.False(t, result.Advanced)
		assert.Equal(t, 1, result.Instance.CurrentStep)
		assert.Equal(t, []string{"HOD"}, result.PendingRoles)

		result, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("b1", "HOD"))
		require.NoError(t, err)
		assert.True(t, result.Advanced)
		assert.Equal(t, 2, result.Instance.CurrentStep)
	})

	t.Run("re-approval by the same role does not satisfy quorum", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, parallel...)
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		for _, who := range []string{"a1", "a2", "a1"} {
			result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor(who, "DEAN"))
			require.NoError(t, err)
			assert.False(t, result.Advanced)
			assert.Equal(t, []string{"HOD"}, result.PendingRoles)
		}

		result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor("b1", "HOD"))
		require.NoError(t, err)
		assert.True(t, result.Advanced)
	})

	t.Run("reject bypasses quorum", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, parallel...)
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a1", "DEAN"))
		require.NoError(t, err)

		result, err := h.workflows.PerformAction(ctx, instance.ID, reject(), actor("b1", "HOD"))
		require.NoError(t, err)
		assert.True(t, result.Closed)
		assert.Equal(t, workflow.StatusRejected, result.Instance.Status)
	})

	t.Run("last parallel step closes approved", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, StepInput{Order: 1, Name: "Board", ApprovalType: "PARALLEL", ApproverRoles: []string{"DEAN", "HOD"}})
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		_, err = h.workflows.PerformAction(ctx, instance.ID, approve(), actor("b1", "HOD"))
		require.NoError(t, err)
		result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor("a1", "DEAN"))
		require.NoError(t, err)
		assert.True(t, result.Closed)
		assert.Equal(t, workflow.StatusApproved, result.Instance.Status)
	})
}

func TestWorkflowService_Authorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, StepInput{Order: 1, Name: "Review", ApproverRoles: []string{"REVIEWER", "AUDITOR"}})
	instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor string
		role  string
	}{
		{"role outside step", "s1", "STUDENT"},
		{"globally excluded role listed on step", "x1", "AUDITOR"},
		{"missing actor id", "", "REVIEWER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor(tt.actor, tt.role))
			assert.ErrorIs(t, err, workflow.ErrForbidden)
		})
	}

	// denied actions leave no trace
	actions, err := h.workflows.ListActions(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestWorkflowService_ActionValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)
	instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)

	_, err = h.workflows.PerformAction(ctx, instance.ID, ActionRequest{Action: "ESCALATE"}, actor("a", "R1"))
	assert.ErrorIs(t, err, workflow.ErrValidation)

	// thesis_review has no scheduler
	_, err = h.workflows.PerformAction(ctx, instance.ID, ActionRequest{Action: "SCHEDULE"}, actor("a", "R1"))
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = h.workflows.PerformAction(ctx, 999, approve(), actor("a", "R1"))
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	actions, err := h.workflows.ListActions(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, actions, "failed actions must roll back")
}

func TestWorkflowService_CloseWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)
	instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)

	_, err = h.workflows.CloseWorkflow(ctx, instance.ID, workflow.StatusInProgress, actor("root", "ADMIN"))
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = h.workflows.CloseWorkflow(ctx, instance.ID, workflow.StatusRejected, actor("a", "R1"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	closed, err := h.workflows.CloseWorkflow(ctx, instance.ID, workflow.StatusRejected, actor("root", "ADMIN"))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRejected, closed.Status)

	// the entity can run again once closed
	_, err = h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	assert.NoError(t, err)
}

func TestWorkflowService_PendingActions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)

	first, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)
	second, err := h.workflows.Initiate(ctx, thesis, "2", actor("u1", "STUDENT"))
	require.NoError(t, err)
	_, err = h.workflows.PerformAction(ctx, second.ID, approve(), actor("a", "R1"))
	require.NoError(t, err)

	r1, err := h.workflows.GetPendingActions(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, first.ID, r1[0].Instance.ID)

	r2, err := h.workflows.GetPendingActions(ctx, "R2")
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.Equal(t, second.ID, r2[0].Instance.ID)
	assert.Equal(t, "Committee", r2[0].Step.Name)

	excluded, err := h.workflows.GetPendingActions(ctx, "AUDITOR")
	require.NoError(t, err)
	assert.Empty(t, excluded)
}

func TestWorkflowService_DispatchFailureKeepsClosure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, entity.EntityTypeLeave, StepInput{Order: 1, Name: "Manager", ApproverRoles: []string{"MANAGER"}})

	// no leave_requests row 404 exists, so the leave handler's write fails
	instance, err := h.workflows.Initiate(ctx, entity.EntityTypeLeave, "404", actor("e1", "EMPLOYEE"))
	require.NoError(t, err)

	result, err := h.workflows.PerformAction(ctx, instance.ID, approve(), actor("m1", "MANAGER"))
	require.NoError(t, err)
	assert.True(t, result.Closed)

	view, err := h.workflows.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, view.Instance.Status)
}

func TestWorkflowService_Trail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.define(t, thesis, sequentialSteps()...)
	instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
	require.NoError(t, err)
	_, err = h.workflows.PerformAction(ctx, instance.ID, reject(), actor("a", "R1"))
	require.NoError(t, err)

	trail, err := h.workflows.Trail(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, trail.Definition.Steps, 2)
	assert.Len(t, trail.Actions, 1)

	var kinds []string
	for _, a := range trail.Audit {
		kinds = append(kinds, a.Action)
	}
	assert.Equal(t, []string{entity.AuditWorkflowInitiated, entity.AuditWorkflowAction, entity.AuditWorkflowClosed}, kinds)
}

// raceApprovals runs one approval per actor concurrently on the same instance
func raceApprovals(t *testing.T, h *harness, instanceID int64, actors ...authz.Actor) ([]*ActionResult, []error) {
	t.Helper()
	ctx := context.Background()

	results := make([]*ActionResult, len(actors))
	errs := make([]error, len(actors))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, a := range actors {
		wg.Add(1)
		go func(i int, a authz.Actor) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.workflows.PerformAction(ctx, instanceID, approve(), a)
		}(i, a)
	}
	close(start)
	wg.Wait()
	return results, errs
}

func TestWorkflowService_ConcurrentActions(t *testing.T) {
	ctx := context.Background()

	t.Run("racing approvals on a sequential step advance once", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis, sequentialSteps()...)
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		results, errs := raceApprovals(t, h, instance.ID, actor("a", "R1"), actor("b", "R1"))

		advanced := 0
		for i, err := range errs {
			if err != nil {
				assert.True(t, errors.Is(err, workflow.ErrStateViolation) || errors.Is(err, workflow.ErrForbidden),
					"loser must fail with a state violation or forbidden, got %v", err)
				continue
			}
			if results[i].Advanced {
				advanced++
			}
		}
		assert.Equal(t, 1, advanced)

		view, err := h.workflows.GetInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, view.Instance.CurrentStep)
		assert.Equal(t, workflow.StatusInProgress, view.Instance.Status)
		assert.Len(t, view.Actions, 1)
	})

	t.Run("racing roles on a parallel step advance exactly once", func(t *testing.T) {
		h := newHarness(t)
		h.define(t, thesis,
			StepInput{Order: 1, Name: "Board", ApprovalType: "PARALLEL", ApproverRoles: []string{"DEAN", "HOD"}},
			StepInput{Order: 2, Name: "Registrar", ApprovalType: "SEQUENTIAL", ApproverRoles: []string{"REGISTRAR"}},
		)
		instance, err := h.workflows.Initiate(ctx, thesis, "1", actor("u1", "STUDENT"))
		require.NoError(t, err)

		results, errs := raceApprovals(t, h, instance.ID, actor("d", "DEAN"), actor("h", "HOD"))

		advanced, pending := 0, 0
		for i, err := range errs {
			require.NoError(t, err)
			if results[i].Advanced {
				advanced++
			}
			if len(results[i].PendingRoles) > 0 {
				pending++
			}
		}
		assert.Equal(t, 1, advanced, "the second approval completes the step")
		assert.Equal(t, 1, pending, "the first approval waits for the other role")

		view, err := h.workflows.GetInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, view.Instance.CurrentStep)
		assert.Len(t, view.Actions, 2)
	})
}
