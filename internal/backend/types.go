package backend

import (
	"errors"
	"fmt"
)

// ErrCall matches every adapter failure via errors.Is.
var ErrCall = errors.New("backend call failed")

// CallError is the common failure type of all adapters: network errors,
// non-success statuses and malformed responses all end up here.
type CallError struct {
	Provider Provider
	Cause    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Cause)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

func (e *CallError) Is(target error) bool {
	return target == ErrCall
}

func callError(p Provider, format string, args ...any) *CallError {
	return &CallError{Provider: p, Cause: fmt.Errorf(format, args...)}
}

// Config defines one backend.
type Config struct {
	Provider string   `json:"provider"`
	APIKey   string   `json:"api_key,omitempty"`
	Model    string   `json:"model,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"` // Overrides the provider's default URL
	Command  []string `json:"command,omitempty"`  // For the command provider: argv, prompt on stdin
	WorkDir  string   `json:"work_dir,omitempty"`
}

// Configured reports whether cfg names a provider and, for HTTP providers, a key.
func (c Config) Configured() bool {
	p, ok := ParseProvider(c.Provider)
	if !ok {
		return false
	}
	if p == ProviderCommand {
		return len(c.Command) > 0
	}
	return c.APIKey != ""
}
