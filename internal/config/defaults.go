package config

import "github.com/aristath/docforge/internal/backend"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Primary:        backend.Config{Provider: "zhipu", Model: "glm-4"},
			MaxRetries:     3,
			TimeoutSeconds: 60,
		},
		Storage: StorageConfig{
			OutputDir:      "output",
			TaskDataDir:    "data/tasks",
			RetentionHours: 24,
		},
		Workers: WorkerConfig{
			MaxConcurrentTasks: 2,
		},
		Server: ServerConfig{
			Addr: ":5000",
		},
		TechStacksDir:    "tech_stacks",
		CodeTemplatesDir: "code_templates",
		Telemetry: TelemetryConfig{
			ServiceName: "docforge",
		},
	}
}
