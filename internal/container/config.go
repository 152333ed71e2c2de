// Package container provides dependency injection and lifecycle management
// for the approval engine.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	httpserver "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/garyjia/approval-engine/pkg/tracing"
)

// Config holds all configuration for the Container.
// Subsystem settings reuse the types of the packages they configure.
type Config struct {
	Database DatabaseConfig

	// Workflow engine policy
	Workflow WorkflowConfig

	// SLASweep reports overdue admission statuses; a zero PollInterval disables it
	SLASweep worker.SLAWorkerConfig

	// Lark chat notifications; disabled unless credentials and a chat are set
	Lark lark.Config

	// FontName is the default font of exported trail workbooks
	FontName string

	Server httpserver.ServerConfig

	Tracing tracing.Config
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	database.Config

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// WorkflowConfig holds approval engine policy.
type WorkflowConfig struct {
	// ExcludedRoles may never act on workflows or admissions
	ExcludedRoles []string

	// AdminRoles may manage definitions and close instances administratively
	AdminRoles []string

	// RegistrarRoles hold the staff admission operations
	RegistrarRoles []string

	// FinanceRoles record admission payments
	FinanceRoles []string

	// PanelSteps are admission step names guarded by the interview panel check
	PanelSteps []string

	// SLAOverrides replaces admission SLA offsets, keyed by status
	SLAOverrides map[string]int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	server := httpserver.DefaultServerConfig()
	return &Config{
		Database: DatabaseConfig{
			Config: database.Config{
				Path:            "data/engine.db",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				BusyTimeout:     5 * time.Second,
			},
		},
		Workflow: WorkflowConfig{
			ExcludedRoles: []string{"AUDITOR"},
			AdminRoles:     []string{"ADMIN"},
			RegistrarRoles: []string{"REGISTRAR"},
			FinanceRoles:   []string{"FINANCE"},
			PanelSteps:     []string{"Interview Panel"},
		},
		SLASweep: worker.DefaultSLAWorkerConfig(),
		Lark: lark.Config{
			Timeout: 30 * time.Second,
		},
		FontName: "Calibri",
		Server:   server,
		Tracing: tracing.Config{
			ServiceName: "approval-engine",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Workflow.AdminRoles) == 0 {
		return fmt.Errorf("workflow.admin_roles is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port is required")
	}
	return nil
}
