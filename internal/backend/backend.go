package backend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend is one text-generation provider.
type Backend interface {
	// Call sends prompt and returns the generated text. Any failure is a *CallError.
	Call(ctx context.Context, prompt string, timeout time.Duration) (string, error)

	// Provider names the adapter for logs and errors.
	Provider() Provider
}

// Provider identifies a supported backend.
type Provider string

const (
	ProviderZhipu   Provider = "zhipu"
	ProviderTongyi  Provider = "tongyi"
	ProviderCommand Provider = "command"
)

// ParseProvider normalizes a configured provider name.
// Returns false for names outside the supported set.
func ParseProvider(name string) (Provider, bool) {
	switch strings.TrimSpace(name) {
	case "zhipu":
		return ProviderZhipu, true
	case "tongyi", "tongyiQwen", "tongyi_qwen":
		return ProviderTongyi, true
	case "command":
		return ProviderCommand, true
	default:
		return "", false
	}
}

// New creates the adapter selected by cfg.Provider.
// The ProcessManager is only used by the command adapter and may be nil.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	provider, ok := ParseProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown backend provider: %q", cfg.Provider)
	}

	switch provider {
	case ProviderZhipu, ProviderTongyi:
		return NewChatAdapter(provider, cfg)
	default:
		return NewCommandAdapter(cfg, pm)
	}
}
