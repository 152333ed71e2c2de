package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	httpserver "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/garyjia/approval-engine/pkg/tracing"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier port.ChatNotifier
	exporter port.TrailExporter

	// Application
	guard    *authz.Guard
	registry *dispatcher.Registry
	bus      eventbus.Bus
	services *ServiceBundle

	// Workers
	workers *worker.Manager

	// Interfaces
	server *httpserver.Server

	shutdownTracing func(context.Context) error

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition  port.DefinitionRepository
	Instance    port.InstanceRepository
	Action      port.ActionRepository
	Audit       port.AuditRepository
	Application port.ApplicationRepository
	Payment     port.PaymentRepository
	Leave       port.LeaveRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Catalog    service.CatalogService
	Workflows  service.WorkflowService
	Admissions service.AdmissionService
	Leaves     service.LeaveService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components. The HTTP server is built but not
// listening; call Server().Start() to serve requests.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database and repositories
// 3. External clients (Lark, trail exporter)
// 4. Event bus, guard, dispatcher and application services
// 5. Workers
// 6. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Tracing
	shutdown, err := tracing.Init(c.config.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.shutdownTracing = shutdown

	// Step 2: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 3: Initialize external clients
	c.initExternalClients()
	c.logger.Info("External clients initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized",
		zap.Int("domain_handlers", len(c.registry.ListHandlers())))

	// Step 5: Start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.Count()))

	// Step 6: HTTP server
	c.initServer()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// The HTTP server stops when the context passed to its Start is cancelled.

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// Step 2: Drain async event handlers (reverse of step 4)
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			c.logger.Error("Failed to close event bus", zap.Error(err))
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		} else {
			c.logger.Info("Event bus closed")
		}
	}

	// Step 3: Close database (reverse of step 2)
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	// Step 4: Flush spans (reverse of step 1)
	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(context.Background()); err != nil {
			c.logger.Error("Failed to shut down tracing", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.database != nil {
		if err := c.database.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check dispatcher
	if c.registry != nil {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("handler count: %d", len(c.registry.ListHandlers())),
		}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check workers
	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning() || c.workers.Count() == 0,
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		}
		if c.workers.Count() > 0 && !c.workers.IsRunning() {
			status.Overall = false
		}
	}

	// Notifications are optional and never affect overall health
	if c.notifier != nil {
		status.Components["lark"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["lark"] = ComponentHealth{Healthy: true, Message: "disabled"}
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr
	c.repositories = ProvideRepositories(c.database, c.logger)
	return nil
}

// initExternalClients initializes the Lark messenger and the trail exporter.
func (c *Container) initExternalClients() {
	c.notifier = ProvideChatNotifier(c.config.Lark, c.logger)
	c.exporter = ProvideExporter(c.config.FontName, c.logger)
}

// initServices wires the event bus, authorization guard, domain dispatcher
// and application services.
func (c *Container) initServices() error {
	table, err := ProvideAdmissionTable(c.config.Workflow.SLAOverrides)
	if err != nil {
		return err
	}

	eventLog := &zapLoggerAdapter{logger: c.logger.Named("events")}
	c.bus = eventbus.New(eventbus.WithLogger(eventLog))
	eventbus.SubscribeLogging(c.bus, eventLog)
	if c.notifier != nil {
		eventbus.SubscribeChat(c.bus, c.notifier)
	}

	c.guard = authz.NewGuard(c.config.Workflow.ExcludedRoles...)
	c.registry = dispatcher.NewRegistry(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: c.logger.Named("dispatcher")}),
	)

	c.services = ProvideServices(
		c.config.Workflow,
		c.repositories,
		c.db,
		table,
		c.guard,
		c.registry,
		c.bus,
		c.logger,
	)
	return nil
}

// initWorkers registers and starts background workers.
func (c *Container) initWorkers() error {
	c.workers = worker.NewManager(c.logger.Named("workers"))
	if c.config.SLASweep.PollInterval > 0 {
		c.workers.Register(worker.NewSLAWorker(c.config.SLASweep, c.repositories.Application, c.bus, c.logger))
	}
	return c.workers.StartAll(c.ctx)
}

// initServer builds the HTTP adapter over the application services.
func (c *Container) initServer() {
	c.server = httpserver.NewServer(c.config.Server, httpserver.Services{
		Catalog:    c.services.Catalog,
		Workflows:  c.services.Workflows,
		Admissions: c.services.Admissions,
		Leaves:     c.services.Leaves,
		Exporter:   c.exporter,
		Registry:   c.registry,
	}, &zapLoggerAdapter{logger: c.logger.Named("http")})
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Registry returns the domain dispatcher.
func (c *Container) Registry() *dispatcher.Registry {
	return c.registry
}

// Bus returns the event bus.
func (c *Container) Bus() eventbus.Bus {
	return c.bus
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Server returns the HTTP server.
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// declared by the application and interface packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
