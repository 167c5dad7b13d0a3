package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"
)

// Status represents the lifecycle stage of a task.
type Status string

const (
	StatusPending     Status = "pending"     // Created, waiting for a worker
	StatusProcessing  Status = "processing"  // Owned by a running worker
	StatusCompleted   Status = "completed"   // Finished with output files
	StatusFailed      Status = "failed"      // A step failed fatally
	StatusCancelled   Status = "cancelled"   // Stopped on request
	StatusInterrupted Status = "interrupted" // Found processing after a restart
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TotalSteps is the fixed number of pipeline steps.
const TotalSteps = 6

// User-visible messages.
const (
	CreatedMessage         = "task created, waiting to run..."
	CancelRequestedMessage = "cancellation requested, stopping task..."
	CancelledMessage       = "task cancelled"
	InterruptedMessage     = "task was interrupted, it can be resumed"
	ResumedMessage         = "task resumed, waiting to run..."
	CompletedMessage       = "generation completed"
)

const (
	maxLogEntries = 200
	// RecentLogLimit is the number of log entries included in a Projection.
	RecentLogLimit = 20
)

var (
	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = errors.New("task not found")
	// ErrTerminal is returned when a mutation would alter a finished task.
	ErrTerminal = errors.New("task already in a terminal status")
	// ErrNotResumable is returned when a task cannot be rescheduled.
	ErrNotResumable = errors.New("task cannot be resumed")
)

// LogEntry is one timestamped line of a task's log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// State is the record kept for every submitted task.
type State struct {
	ID              string            `json:"task_id"`
	Status          Status            `json:"status"`
	CancelRequested bool              `json:"cancel_requested"`
	CurrentStep     int               `json:"current_step"`
	StepName        string            `json:"step_name"`
	TotalSteps      int               `json:"total_steps"`
	Progress        int               `json:"progress"`
	Message         string            `json:"message"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Logs            []LogEntry        `json:"logs"`
	Warnings        []string          `json:"warnings"`
	Errors          []string          `json:"errors"`
	OutputFiles     map[string]string `json:"output_files"`
	Context         json.RawMessage   `json:"context,omitempty"` // Snapshot of the pipeline context
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Logs = slices.Clone(s.Logs)
	c.Warnings = slices.Clone(s.Warnings)
	c.Errors = slices.Clone(s.Errors)
	c.OutputFiles = maps.Clone(s.OutputFiles)
	c.Context = json.RawMessage(bytes.Clone(s.Context))
	return &c
}

// Projection is the view of a task served to status readers.
// It leaves out the context snapshot and keeps only the most recent log entries.
type Projection struct {
	ID              string            `json:"task_id"`
	Status          Status            `json:"status"`
	CancelRequested bool              `json:"cancel_requested"`
	CurrentStep     int               `json:"current_step"`
	TotalSteps      int               `json:"total_steps"`
	StepName        string            `json:"step_name"`
	Progress        int               `json:"progress"`
	Message         string            `json:"message"`
	CreatedAt       time.Time         `json:"created_at"`
	Warnings        []string          `json:"warnings"`
	Errors          []string          `json:"errors"`
	Logs            []LogEntry        `json:"logs"`
	OutputFiles     map[string]string `json:"output_files"`
}

// Project builds the reader view of s.
func (s *State) Project() Projection {
	logs := s.Logs
	if len(logs) > RecentLogLimit {
		logs = logs[len(logs)-RecentLogLimit:]
	}

	p := Projection{
		ID:              s.ID,
		Status:          s.Status,
		CancelRequested: s.CancelRequested,
		CurrentStep:     s.CurrentStep,
		TotalSteps:      s.TotalSteps,
		StepName:        s.StepName,
		Progress:        s.Progress,
		Message:         s.Message,
		CreatedAt:       s.CreatedAt,
		Warnings:        slices.Clone(s.Warnings),
		Errors:          slices.Clone(s.Errors),
		Logs:            slices.Clone(logs),
		OutputFiles:     maps.Clone(s.OutputFiles),
	}
	if p.Warnings == nil {
		p.Warnings = []string{}
	}
	if p.Errors == nil {
		p.Errors = []string{}
	}
	if p.Logs == nil {
		p.Logs = []LogEntry{}
	}
	if p.OutputFiles == nil {
		p.OutputFiles = map[string]string{}
	}
	return p
}
