package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Export   ExportConfig   `mapstructure:"export"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// WorkflowConfig holds approval engine policy
type WorkflowConfig struct {
	ExcludedRoles []string `mapstructure:"excluded_roles"`
	AdminRoles    []string `mapstructure:"admin_roles"`
	// RegistrarRoles hold the staff admission operations
	RegistrarRoles []string `mapstructure:"registrar_roles"`
	FinanceRoles   []string `mapstructure:"finance_roles"`

	PanelSteps []string       `mapstructure:"panel_steps"`
	SLADays    map[string]int `mapstructure:"sla_days"`
	// SLASweepInterval of zero disables the overdue sweep
	SLASweepInterval time.Duration `mapstructure:"sla_sweep_interval"`
	SLASweepBatch    int           `mapstructure:"sla_sweep_batch"`
}

// SLAOverrides returns the admission SLA offsets keyed by status.
// Viper lowercases map keys so they are restored here.
func (w WorkflowConfig) SLAOverrides() map[string]int {
	out := make(map[string]int, len(w.SLADays))
	for k, v := range w.SLADays {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID        string        `mapstructure:"app_id"`
	AppSecret    string        `mapstructure:"app_secret"`
	NotifyChatID string        `mapstructure:"notify_chat_id"`
	BaseURL      string        `mapstructure:"base_url"`
	APITimeout   time.Duration `mapstructure:"api_timeout"`
}

// ExportConfig holds audit trail export configuration
type ExportConfig struct {
	FontName string `mapstructure:"font_name"`
}

// TracingConfig holds span export configuration
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputPath  string `mapstructure:"output_path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath, overlays .env and environment variables, and validates
// the result. An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/engine.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "")

	// Workflow defaults
	v.SetDefault("workflow.excluded_roles", []string{"AUDITOR"})
	v.SetDefault("workflow.admin_roles", []string{"ADMIN"})
	v.SetDefault("workflow.registrar_roles", []string{"REGISTRAR"})
	v.SetDefault("workflow.finance_roles", []string{"FINANCE"})
	v.SetDefault("workflow.panel_steps", []string{"Interview Panel"})
	v.SetDefault("workflow.sla_sweep_interval", time.Minute)
	v.SetDefault("workflow.sla_sweep_batch", 50)

	// Lark defaults
	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("export.font_name", "Calibri")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "approval-engine")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.notify_chat_id", "LARK_NOTIFY_CHAT_ID")
	_ = v.BindEnv("database.path", "ENGINE_DB_PATH")
	_ = v.BindEnv("server.port", "ENGINE_PORT")
	_ = v.BindEnv("logger.level", "ENGINE_LOG_LEVEL")
	_ = v.BindEnv("tracing.enabled", "ENGINE_TRACING")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if len(c.Workflow.AdminRoles) == 0 {
		return fmt.Errorf("workflow.admin_roles must name at least one role")
	}
	staff := map[string][]string{
		"admin":     c.Workflow.AdminRoles,
		"registrar": c.Workflow.RegistrarRoles,
		"finance":   c.Workflow.FinanceRoles,
	}
	for kind, roles := range staff {
		for _, role := range roles {
			for _, excluded := range c.Workflow.ExcludedRoles {
				if role == excluded {
					return fmt.Errorf("role %s cannot be both %s and excluded", role, kind)
				}
			}
		}
	}
	if c.Workflow.SLASweepInterval < 0 {
		return fmt.Errorf("workflow.sla_sweep_interval must not be negative")
	}
	for status, days := range c.Workflow.SLADays {
		if days < 0 {
			return fmt.Errorf("workflow.sla_days.%s must not be negative", status)
		}
	}

	// Lark credentials are optional but must come as a pair
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}
