package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ApplyEnv overlays environment variables onto cfg. When envFile exists it is
// loaded first; variables already set in the process environment win over it.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
		}
	}

	setString(&cfg.AI.Primary.Provider, "AI_PRIMARY_PROVIDER")
	setString(&cfg.AI.Primary.APIKey, "AI_PRIMARY_API_KEY")
	setString(&cfg.AI.Primary.Model, "AI_PRIMARY_MODEL")
	setString(&cfg.AI.Standby.Provider, "AI_FALLBACK_PROVIDER")
	setString(&cfg.AI.Standby.APIKey, "AI_FALLBACK_API_KEY")
	setString(&cfg.AI.Standby.Model, "AI_FALLBACK_MODEL")
	setString(&cfg.Storage.OutputDir, "OUTPUT_DIR")
	setString(&cfg.Storage.TaskDataDir, "TASK_DATA_DIR")
	setString(&cfg.TechStacksDir, "TECH_STACKS_DIR")
	setString(&cfg.CodeTemplatesDir, "CODE_TEMPLATES_DIR")
	setString(&cfg.Server.Addr, "HTTP_ADDR")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := setInt(&cfg.Workers.MaxConcurrentTasks, "MAX_CONCURRENT_TASKS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Storage.RetentionHours, "FILE_RETENTION_HOURS"); err != nil {
		return err
	}
	if err := setInt(&cfg.AI.MaxRetries, "AI_MAX_RETRIES"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
