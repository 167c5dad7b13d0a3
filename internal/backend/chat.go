package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	zhipuEndpoint  = "https://open.bigmodel.cn/api/paas/v4/chat/completions"
	tongyiEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"

	chatTemperature = 0.7
	chatMaxTokens   = 4096

	// DefaultTimeout applies when a caller passes no timeout.
	DefaultTimeout = 60 * time.Second
)

var defaults = map[Provider]struct{ endpoint, model string }{
	ProviderZhipu:  {zhipuEndpoint, "glm-4"},
	ProviderTongyi: {tongyiEndpoint, "qwen-max"},
}

// ChatAdapter calls an OpenAI-compatible chat completions endpoint.
type ChatAdapter struct {
	provider Provider
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatAdapter creates an HTTP adapter for provider. Endpoint and model fall
// back to the provider defaults.
func NewChatAdapter(provider Provider, cfg Config) (*ChatAdapter, error) {
	d, ok := defaults[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q has no chat endpoint", provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q requires an API key", provider)
	}

	a := &ChatAdapter{
		provider: provider,
		endpoint: d.endpoint,
		apiKey:   cfg.APIKey,
		model:    d.model,
		client:   &http.Client{},
		breaker:  newBreaker(string(provider)),
	}
	if cfg.Endpoint != "" {
		a.endpoint = cfg.Endpoint
	}
	if cfg.Model != "" {
		a.model = cfg.Model
	}
	return a, nil
}

// newBreaker trips after 5 consecutive failures and probes again after 30s.
// Caller cancellation does not count as a provider failure.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Provider returns the adapter's provider.
func (a *ChatAdapter) Provider() Provider {
	return a.provider
}

// Call posts prompt as a single user message and returns the first choice.
func (a *ChatAdapter) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.post(ctx, prompt)
	})
	if err != nil {
		var ce *CallError
		if errors.As(err, &ce) {
			return "", ce
		}
		// Open or half-open breaker rejections
		return "", &CallError{Provider: a.provider, Cause: err}
	}
	return out.(string), nil
}

func (a *ChatAdapter) post(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       a.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", callError(a.provider, "failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", callError(a.provider, "failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", callError(a.provider, "request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", callError(a.provider, "failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", callError(a.provider, "status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", callError(a.provider, "malformed response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", callError(a.provider, "response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
