package backend

import (
	"errors"
	"testing"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name string
		want Provider
		ok   bool
	}{
		{"zhipu", ProviderZhipu, true},
		{" zhipu ", ProviderZhipu, true},
		{"tongyi", ProviderTongyi, true},
		{"tongyiQwen", ProviderTongyi, true},
		{"tongyi_qwen", ProviderTongyi, true},
		{"command", ProviderCommand, true},
		{"openai", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseProvider(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProvider(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFactory(t *testing.T) {
	pm := NewProcessManager()

	b, err := New(Config{Provider: "zhipu", APIKey: "k"}, pm)
	if err != nil {
		t.Fatalf("zhipu: %v", err)
	}
	if b.Provider() != ProviderZhipu {
		t.Errorf("provider = %s", b.Provider())
	}

	b, err = New(Config{Provider: "tongyi_qwen", APIKey: "k"}, pm)
	if err != nil {
		t.Fatalf("tongyi: %v", err)
	}
	if _, ok := b.(*ChatAdapter); !ok || b.Provider() != ProviderTongyi {
		t.Errorf("expected tongyi chat adapter, got %T %s", b, b.Provider())
	}

	b, err = New(Config{Provider: "command", Command: []string{"cat"}, WorkDir: t.TempDir()}, pm)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if _, ok := b.(*CommandAdapter); !ok {
		t.Errorf("expected command adapter, got %T", b)
	}
}

func TestFactoryErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown provider", Config{Provider: "openai", APIKey: "k"}},
		{"missing key", Config{Provider: "zhipu"}},
		{"missing command", Config{Provider: "command"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigured(t *testing.T) {
	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{}, false},
		{Config{Provider: "zhipu"}, false},
		{Config{Provider: "zhipu", APIKey: "k"}, true},
		{Config{Provider: "command"}, false},
		{Config{Provider: "command", Command: []string{"gen"}}, true},
		{Config{Provider: "nope", APIKey: "k"}, false},
	}

	for _, tt := range tests {
		if got := tt.cfg.Configured(); got != tt.want {
			t.Errorf("%+v.Configured() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestCallErrorMatching(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&CallError{Provider: ProviderZhipu, Cause: cause})

	if !errors.Is(err, ErrCall) {
		t.Error("CallError should match ErrCall")
	}
	if !errors.Is(err, cause) {
		t.Error("CallError should unwrap to its cause")
	}
	if err.Error() != "zhipu call failed: connection reset" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
