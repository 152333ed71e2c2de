package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allow(context.Context, Request) (bool, error) { return true, nil }
func deny(context.Context, Request) (bool, error)  { return false, nil }

func request(role string) Request {
	return Request{
		Actor:    Actor{ID: "u1", Role: role},
		Instance: &entity.WorkflowInstance{ID: 1, EntityType: "admission_application", EntityID: "5"},
		Step:     &entity.WorkflowStep{Name: "Interview", ApproverRoles: []string{"FACULTY", "AUDITOR"}},
	}
}

func TestGuard_Authorize(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(g *Guard)
		role    string
		wantErr error
	}{
		{name: "approver role passes", role: "FACULTY"},
		{name: "role outside step", role: "STUDENT", wantErr: workflow.ErrForbidden},
		{name: "global exclusion wins over step membership", role: "AUDITOR", wantErr: workflow.ErrForbidden},
		{
			name:    "step exclusion",
			setup:   func(g *Guard) { g.DenyRoleOnSteps("FACULTY", "Interview") },
			role:    "FACULTY",
			wantErr: workflow.ErrForbidden,
		},
		{
			name:  "step exclusion on other step",
			setup: func(g *Guard) { g.DenyRoleOnSteps("FACULTY", "Dean Review") },
			role:  "FACULTY",
		},
		{
			name:    "failing predicate",
			setup:   func(g *Guard) { g.Require("admission_application", "Interview", "panel", deny) },
			role:    "FACULTY",
			wantErr: workflow.ErrForbidden,
		},
		{
			name:  "predicate on other entity type is ignored",
			setup: func(g *Guard) { g.Require("leave_request", "Interview", "panel", deny) },
			role:  "FACULTY",
		},
		{
			name: "all predicates must pass",
			setup: func(g *Guard) {
				g.Require("admission_application", "Interview", "a", allow)
				g.Require("admission_application", "Interview", "b", deny)
			},
			role:    "FACULTY",
			wantErr: workflow.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard("AUDITOR")
			if tt.setup != nil {
				tt.setup(g)
			}

			err := g.Authorize(context.Background(), request(tt.role))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_ExclusionsEvaluatedBeforePredicates(t *testing.T) {
	called := false
	g := NewGuard("AUDITOR")
	g.Require("admission_application", "Interview", "panel", func(context.Context, Request) (bool, error) {
		called = true
		return true, nil
	})

	err := g.Authorize(context.Background(), request("AUDITOR"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	assert.False(t, called)
}

func TestGuard_PredicateErrorIsNotForbidden(t *testing.T) {
	boom := errors.New("db down")
	g := NewGuard()
	g.Require("admission_application", "Interview", "panel", func(context.Context, Request) (bool, error) {
		return false, boom
	})

	err := g.Authorize(context.Background(), request("FACULTY"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, workflow.ErrForbidden)
}

func TestGuard_UnauthenticatedActor(t *testing.T) {
	req := request("FACULTY")
	req.Actor.ID = ""
	assert.ErrorIs(t, NewGuard().Authorize(context.Background(), req), workflow.ErrForbidden)
}

func TestCombinators(t *testing.T) {
	ctx := context.Background()
	req := request("FACULTY")

	ok, err := AllOf(allow, allow)(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AllOf(allow, deny)(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = AnyOf(deny, allow)(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AnyOf(deny, deny)(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = AnyOf()(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuard_IsExcluded(t *testing.T) {
	g := NewGuard("AUDITOR")
	assert.True(t, g.IsExcluded("AUDITOR"))
	assert.False(t, g.IsExcluded("FACULTY"))
}

func TestGuard_AuthorizeOperation(t *testing.T) {
	g := NewGuard("AUDITOR")
	g.Grant("admission.allocate_seat", "REGISTRAR", "AUDITOR", "")

	tests := []struct {
		name      string
		actor     Actor
		operation string
		wantErr   bool
	}{
		{"granted role", Actor{ID: "r1", Role: "REGISTRAR"}, "admission.allocate_seat", false},
		{"role without grant", Actor{ID: "s1", Role: "APPLICANT"}, "admission.allocate_seat", true},
		{"exclusion wins over grant", Actor{ID: "a1", Role: "AUDITOR"}, "admission.allocate_seat", true},
		{"operation nobody was granted", Actor{ID: "r1", Role: "REGISTRAR"}, "admission.verify_documents", true},
		{"unauthenticated", Actor{Role: "REGISTRAR"}, "admission.allocate_seat", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AuthorizeOperation(tt.actor, tt.operation)
			if tt.wantErr {
				assert.ErrorIs(t, err, workflow.ErrForbidden)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
