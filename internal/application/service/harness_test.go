package service

import (
	"context"
	"testing"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// nopLogger implements Logger for testing
type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type harness struct {
	catalog   CatalogService
	workflows WorkflowService
	admission AdmissionService
	leave     LeaveService
	guard     *authz.Guard
	registry  *dispatcher.Registry
	deps      WorkflowDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t).DB
	logger := zap.NewNop()
	tx := sqlite.NewDB(db, logger)

	definitions := repository.NewDefinitionRepository(db, logger)
	audit := repository.NewAuditRepository(db, logger)
	guard := authz.NewGuard("AUDITOR")
	registry := dispatcher.NewRegistry(dispatcher.WithLogger(nopLogger{}))
	bus := eventbus.New()
	t.Cleanup(func() { _ = bus.Close() })

	deps := WorkflowDeps{
		Definitions: definitions,
		Instances:   repository.NewInstanceRepository(db, logger),
		Actions:     repository.NewActionRepository(db, logger),
		Audit:       audit,
		TxManager:   tx,
		Guard:       guard,
		Registry:    registry,
		Bus:         bus,
		Logger:      nopLogger{},
		AdminRoles:  []string{"ADMIN"},
	}
	workflows := NewWorkflowService(deps)

	adm := NewAdmissionService(AdmissionDeps{
		Applications: repository.NewApplicationRepository(db, logger),
		Payments:     repository.NewPaymentRepository(db, logger),
		Audit:        audit,
		TxManager:    tx,
		Workflows:    workflows,
		Guard:        guard,
		Bus:          bus,
		Roles: AdmissionRoles{
			Registrar: []string{"ADMISSIONS"},
			Finance:   []string{"FINANCE"},
			Admin:     []string{"ADMIN"},
		},
		Logger: nopLogger{},
	})
	adm.Register(workflows, registry, guard, "Interview Panel")

	leave := NewLeaveService(repository.NewLeaveRepository(db, logger), workflows, tx, nopLogger{})
	leave.Register(registry)

	return &harness{
		catalog:   NewCatalogService(definitions, audit, tx, nopLogger{}),
		workflows: workflows,
		admission: adm,
		leave:     leave,
		guard:     guard,
		registry:  registry,
		deps:      deps,
	}
}

// define creates an active definition for entityType with the given steps
func (h *harness) define(t *testing.T, entityType string, steps ...StepInput) int64 {
	t.Helper()
	ctx := context.Background()

	def, err := h.catalog.CreateDefinition(ctx, entityType+" review", "test", entityType, "admin")
	require.NoError(t, err)
	_, err = h.catalog.AddSteps(ctx, def.ID, steps, "admin")
	require.NoError(t, err)
	return def.ID
}

func actor(id, role string) authz.Actor {
	return authz.Actor{ID: id, Role: role}
}

func approve() ActionRequest { return ActionRequest{Action: "APPROVE"} }
func reject() ActionRequest  { return ActionRequest{Action: "REJECT", Remarks: "no"} }
