package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/docforge/internal/backend"
)

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.AI.Primary = backend.Config{Provider: "command", Command: []string{"gen", "--fast"}}
	cfg.AI.Standby = backend.Config{Provider: "tongyi", APIKey: "k", Model: "qwen-plus"}
	cfg.Workers.MaxConcurrentTasks = 3
	cfg.Telemetry.OTLPEndpoint = "http://collector:4318"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.AI.Primary.Command) != 2 || loaded.AI.Primary.Command[1] != "--fast" {
		t.Errorf("primary command mismatch: %v", loaded.AI.Primary.Command)
	}
	if loaded.AI.Standby.Model != "qwen-plus" {
		t.Errorf("standby model mismatch: %q", loaded.AI.Standby.Model)
	}
	if loaded.Workers.MaxConcurrentTasks != 3 {
		t.Errorf("max concurrent mismatch: %d", loaded.Workers.MaxConcurrentTasks)
	}
	if loaded.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Errorf("endpoint mismatch: %q", loaded.Telemetry.OTLPEndpoint)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.Server.Addr = ":1111"
	if err := Save(first, path); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := DefaultConfig()
	second.Server.Addr = ":2222"
	if err := Save(second, path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Addr != ":2222" {
		t.Errorf("addr = %q, want :2222", loaded.Server.Addr)
	}
}
