package container

import (
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/infrastructure/export"
	"github.com/garyjia/approval-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, applies pending migrations and wraps
// the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(cfg.Config, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over one connection pool.
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Definition:  repository.NewDefinitionRepository(db.DB, logger),
		Instance:    repository.NewInstanceRepository(db.DB, logger),
		Action:      repository.NewActionRepository(db.DB, logger),
		Audit:       repository.NewAuditRepository(db.DB, logger),
		Application: repository.NewApplicationRepository(db.DB, logger),
		Payment:     repository.NewPaymentRepository(db.DB, logger),
		Leave:       repository.NewLeaveRepository(db.DB, logger),
	}
}

// ProvideChatNotifier returns a Lark messenger, or nil when notifications
// are not configured.
func ProvideChatNotifier(cfg lark.Config, logger *zap.Logger) port.ChatNotifier {
	if !cfg.Enabled() {
		logger.Info("Lark notifications disabled")
		return nil
	}
	client := lark.NewClient(cfg, logger)
	logger.Info("Lark notifications enabled", zap.String("chat_id", cfg.ChatID))
	return lark.NewMessenger(client, logger)
}

// ProvideAdmissionTable returns the admission table with configured SLA overrides.
func ProvideAdmissionTable(overrides map[string]int) (*admission.Table, error) {
	table := admission.NewTable()
	if len(overrides) == 0 {
		return table, nil
	}
	days := make(map[admission.Status]int, len(overrides))
	for status, d := range overrides {
		days[admission.Status(status)] = d
	}
	return table.WithSLAOverrides(days)
}

// ProvideServices creates the application services and registers the
// admission and leave domains with the engine.
func ProvideServices(
	cfg WorkflowConfig,
	repos *RepositoryBundle,
	txManager port.TransactionManager,
	table *admission.Table,
	guard *authz.Guard,
	registry *dispatcher.Registry,
	bus eventbus.Bus,
	logger *zap.Logger,
) *ServiceBundle {
	log := &zapLoggerAdapter{logger: logger}

	workflows := service.NewWorkflowService(service.WorkflowDeps{
		Definitions: repos.Definition,
		Instances:   repos.Instance,
		Actions:     repos.Action,
		Audit:       repos.Audit,
		TxManager:   txManager,
		Guard:       guard,
		Registry:    registry,
		Bus:         bus,
		Logger:      log,
		AdminRoles:  cfg.AdminRoles,
	})

	admissions := service.NewAdmissionService(service.AdmissionDeps{
		Applications: repos.Application,
		Payments:     repos.Payment,
		Audit:        repos.Audit,
		TxManager:    txManager,
		Workflows:    workflows,
		Guard:        guard,
		Bus:          bus,
		Table:        table,
		Logger:       log,
		Roles: service.AdmissionRoles{
			Registrar: cfg.RegistrarRoles,
			Finance:   cfg.FinanceRoles,
			Admin:     cfg.AdminRoles,
		},
	})
	admissions.Register(workflows, registry, guard, cfg.PanelSteps...)

	leaves := service.NewLeaveService(repos.Leave, workflows, txManager, log)
	leaves.Register(registry)

	return &ServiceBundle{
		Catalog:    service.NewCatalogService(repos.Definition, repos.Audit, txManager, log),
		Workflows:  workflows,
		Admissions: admissions,
		Leaves:     leaves,
	}
}

// ProvideExporter creates the trail workbook exporter.
func ProvideExporter(fontName string, logger *zap.Logger) port.TrailExporter {
	return export.NewTrailWorkbook(fontName, logger)
}
