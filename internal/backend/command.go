package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// CommandAdapter runs a local generator program per call. The prompt is
// written to its stdin and its stdout is the generated text.
type CommandAdapter struct {
	argv    []string
	workDir string
	procMgr *ProcessManager
}

// NewCommandAdapter creates a command adapter. pm may be nil.
func NewCommandAdapter(cfg Config, pm *ProcessManager) (*CommandAdapter, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("command provider requires a command")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &CommandAdapter{
		argv:    append([]string(nil), cfg.Command...),
		workDir: workDir,
		procMgr: pm,
	}, nil
}

// Provider returns ProviderCommand.
func (a *CommandAdapter) Provider() Provider {
	return ProviderCommand
}

// Call runs the command with prompt on stdin. Empty output is a failure.
func (a *CommandAdapter) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := newCommand(ctx, a.argv[0], a.argv[1:]...)
	cmd.Dir = a.workDir
	cmd.Stdin = strings.NewReader(prompt)

	stdout, _, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return "", &CallError{Provider: ProviderCommand, Cause: err}
	}

	text := strings.TrimSpace(string(stdout))
	if text == "" {
		return "", callError(ProviderCommand, "command produced no output")
	}
	return text, nil
}
