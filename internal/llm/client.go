package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/docforge/internal/backend"
)

// DefaultMaxRetries is the attempt budget per adapter when callers pass none.
const DefaultMaxRetries = 3

// ErrExhausted matches an *ExhaustedError.
var ErrExhausted = errors.New("AI call attempts exhausted")

// ExhaustedError reports that every attempt on an adapter failed.
// Last is the failure of the final attempt.
type ExhaustedError struct {
	Provider backend.Provider
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("AI call failed after %d attempts on %s: %v", e.Attempts, e.Provider, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Client generates text with retries on a primary adapter, failing over to a
// standby adapter once the primary's attempts are exhausted. It keeps no state
// between calls.
type Client struct {
	primary  backend.Backend
	standby  backend.Backend
	timeout  time.Duration
	interval time.Duration
	newTimer func() backoff.Timer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout handed to adapters.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInitialInterval sets the wait after the first failure. It doubles per attempt.
func WithInitialInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// New creates a client. standby may be nil.
func New(primary, standby backend.Backend, opts ...Option) *Client {
	c := &Client{
		primary:  primary,
		standby:  standby,
		timeout:  backend.DefaultTimeout,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds adapters from configuration. The standby is only
// created when it names a provider and its credentials.
func NewFromConfig(primary, standby backend.Config, pm *backend.ProcessManager, opts ...Option) (*Client, error) {
	p, err := backend.New(primary, pm)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary backend: %w", err)
	}

	var s backend.Backend
	if standby.Configured() {
		s, err = backend.New(standby, pm)
		if err != nil {
			return nil, fmt.Errorf("failed to create standby backend: %w", err)
		}
	}
	return New(p, s, opts...), nil
}

// HasStandby reports whether a standby adapter is configured.
func (c *Client) HasStandby() bool {
	return c.standby != nil
}

// Generate returns the text generated for prompt. Each adapter gets up to
// maxRetries attempts with exponential backoff between them. Context
// cancellation stops immediately without failing over.
func (c *Client) Generate(ctx context.Context, prompt string, maxRetries int) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	text, err := c.callWithRetry(ctx, c.primary, prompt, maxRetries)
	if err == nil {
		return text, nil
	}
	if c.standby == nil || !errors.Is(err, ErrExhausted) {
		return "", err
	}

	log.Printf("WARNING: primary model failed, switching to standby %s: %v", c.standby.Provider(), err)
	return c.callWithRetry(ctx, c.standby, prompt, maxRetries)
}

func (c *Client) callWithRetry(ctx context.Context, b backend.Backend, prompt string, maxRetries int) (string, error) {
	var text string
	var last error
	attempts := 0

	operation := func() error {
		attempts++
		out, err := b.Call(ctx, prompt, c.timeout)
		if err != nil {
			last = err
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			// The adapter's breaker is open, further attempts cannot reach the provider
			if errors.Is(err, gobreaker.ErrOpenState) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("WARNING: %s call failed (attempt %d/%d): %v, retrying in %s", b.Provider(), attempts, maxRetries, err, wait)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries-1)), ctx)

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	if err := backoff.RetryNotifyWithTimer(operation, bo, notify, timer); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("AI call on %s aborted: %w", b.Provider(), ctxErr)
		}
		if last == nil {
			last = err
		}
		return "", &ExhaustedError{Provider: b.Provider(), Attempts: attempts, Last: last}
	}
	return text, nil
}
