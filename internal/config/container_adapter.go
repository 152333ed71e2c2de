package config

import (
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	httpserver "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/garyjia/approval-engine/pkg/tracing"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Config: database.Config{
				Path:            c.Database.Path,
				MaxOpenConns:    c.Database.MaxOpenConns,
				MaxIdleConns:    c.Database.MaxIdleConns,
				ConnMaxLifetime: c.Database.ConnMaxLifetime,
				BusyTimeout:     c.Database.BusyTimeout,
			},
			MigrationsDir: c.Database.MigrationsDir,
		},
		Workflow: container.WorkflowConfig{
			ExcludedRoles: c.Workflow.ExcludedRoles,
			AdminRoles:     c.Workflow.AdminRoles,
			RegistrarRoles: c.Workflow.RegistrarRoles,
			FinanceRoles:   c.Workflow.FinanceRoles,
			PanelSteps:     c.Workflow.PanelSteps,
			SLAOverrides:   c.Workflow.SLAOverrides(),
		},
		SLASweep: worker.SLAWorkerConfig{
			PollInterval: c.Workflow.SLASweepInterval,
			BatchSize:    c.Workflow.SLASweepBatch,
		},
		Lark: lark.Config{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			ChatID:    c.Lark.NotifyChatID,
			BaseURL:   c.Lark.BaseURL,
			Timeout:   c.Lark.APITimeout,
		},
		FontName: c.Export.FontName,
		Server: httpserver.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			AdminRoles:   c.Workflow.AdminRoles,
		},
		Tracing: tracing.Config{
			Enabled:     c.Tracing.Enabled,
			ServiceName: c.Tracing.ServiceName,
			Version:     version,
			OutputPath:  c.Tracing.OutputPath,
		},
	}
}
