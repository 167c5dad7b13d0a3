package orchestrator

import (
	"context"
	"errors"

	"github.com/aristath/docforge/internal/project"
)

// ErrCancelled is returned by a step that observed a cancellation request itself.
// The pipeline treats it as a cooperative cancellation, not a failure.
var ErrCancelled = errors.New("task cancelled")

// OutcomeKind classifies how a step ended.
type OutcomeKind int

const (
	Success OutcomeKind = iota // Step fully satisfied
	Warning                    // Degraded but the pipeline can continue
	Fatal                      // Step cannot be satisfied, the run stops
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result a step reports. Message is shown to the user: progress text
// on success, the warning on Warning, the failure detail on Fatal.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// Succeeded returns a Success outcome.
func Succeeded(message string) Outcome {
	return Outcome{Kind: Success, Message: message}
}

// Warned returns a Warning outcome.
func Warned(message string) Outcome {
	return Outcome{Kind: Warning, Message: message}
}

// Failed returns a Fatal outcome.
func Failed(message string) Outcome {
	return Outcome{Kind: Fatal, Message: message}
}

// Step is one stage of the pipeline. It mutates pc in place.
// A non-nil error is treated as Fatal unless it is ErrCancelled.
type Step interface {
	Name() string
	Run(ctx context.Context, taskID string, pc *project.Context) (Outcome, error)
}

// Reporter receives the task state transitions of a run.
type Reporter interface {
	UpdateProgress(taskID string, step int, name string, progress int, message string)
	AddLog(taskID string, message string)
	AddWarning(taskID string, warning string)
	FailTask(taskID string, message string)
	MarkCancelled(taskID string, message string)
	IsCancelRequested(taskID string) bool
	UpdateContext(taskID string, snapshot []byte)
}
