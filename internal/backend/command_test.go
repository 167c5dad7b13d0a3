package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCommandAdapterPipesPrompt(t *testing.T) {
	a, err := NewCommandAdapter(Config{Command: []string{"bash", "-c", "tr a-z A-Z"}, WorkDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	text, err := a.Call(context.Background(), "feature list\n", time.Second*5)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if text != "FEATURE LIST" {
		t.Errorf("text = %q", text)
	}
	if a.Provider() != ProviderCommand {
		t.Errorf("provider = %s", a.Provider())
	}
}

func TestCommandAdapterFailures(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"exit status", []string{"bash", "-c", "echo broken >&2; exit 3"}},
		{"empty output", []string{"bash", "-c", "cat > /dev/null"}},
		{"missing binary", []string{"docforge-no-such-generator"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewCommandAdapter(Config{Command: tt.argv, WorkDir: t.TempDir()}, nil)
			if err != nil {
				t.Fatalf("NewCommandAdapter failed: %v", err)
			}
			_, err = a.Call(context.Background(), "p", 5*time.Second)
			if !errors.Is(err, ErrCall) {
				t.Errorf("expected ErrCall, got %v", err)
			}
		})
	}
}
