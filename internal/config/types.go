package config

import (
	"time"

	"github.com/aristath/docforge/internal/backend"
)

// AIConfig selects the primary and standby text generation backends.
type AIConfig struct {
	Primary        backend.Config `json:"primary"`
	Standby        backend.Config `json:"standby"`         // Used only when configured
	MaxRetries     int            `json:"max_retries"`     // Attempts per backend
	TimeoutSeconds int            `json:"timeout_seconds"` // Per call
}

// StorageConfig locates generated files and task data.
type StorageConfig struct {
	OutputDir      string `json:"output_dir"`
	TaskDataDir    string `json:"task_data_dir"`
	RetentionHours int    `json:"retention_hours"`
}

// WorkerConfig bounds concurrent task runs.
type WorkerConfig struct {
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	ServiceName  string `json:"service_name"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	Insecure     bool   `json:"insecure,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	AI               AIConfig        `json:"ai"`
	Storage          StorageConfig   `json:"storage"`
	Workers          WorkerConfig    `json:"workers"`
	Server           ServerConfig    `json:"server"`
	TechStacksDir    string          `json:"tech_stacks_dir"`
	CodeTemplatesDir string          `json:"code_templates_dir"`
	Telemetry        TelemetryConfig `json:"telemetry"`
}

// CallTimeout returns the per-call AI timeout.
func (c *Config) CallTimeout() time.Duration {
	if c.AI.TimeoutSeconds <= 0 {
		return backend.DefaultTimeout
	}
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// Retention returns how long task files are kept. Never less than an hour.
func (c *Config) Retention() time.Duration {
	if c.Storage.RetentionHours < 1 {
		return time.Hour
	}
	return time.Duration(c.Storage.RetentionHours) * time.Hour
}
