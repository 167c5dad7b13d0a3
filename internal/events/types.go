package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
)

// Event type constants
const (
	EventTypeTaskSubmitted = "task.submitted"
	EventTypeTaskProgress  = "task.progress"
	EventTypeTaskLog       = "task.log"
	EventTypeTaskWarning   = "task.warning"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskCancelled = "task.cancelled"
)

// TaskSubmittedEvent is published when a task is accepted and scheduled.
type TaskSubmittedEvent struct {
	ID           string
	SoftwareName string
	Resumed      bool
	Timestamp    time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() string    { return e.ID }

// TaskProgressEvent is published when a task reports step progress.
type TaskProgressEvent struct {
	ID        string
	Step      int
	StepName  string
	Progress  int
	Message   string
	Timestamp time.Time
}

func (e TaskProgressEvent) EventType() string { return EventTypeTaskProgress }
func (e TaskProgressEvent) TaskID() string    { return e.ID }

// TaskLogEvent is published for every log line appended to a task.
type TaskLogEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskLogEvent) EventType() string { return EventTypeTaskLog }
func (e TaskLogEvent) TaskID() string    { return e.ID }

// TaskWarningEvent is published when a step degrades but the run continues.
type TaskWarningEvent struct {
	ID        string
	Warning   string
	Timestamp time.Time
}

func (e TaskWarningEvent) EventType() string { return EventTypeTaskWarning }
func (e TaskWarningEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task reaches completed.
type TaskCompletedEvent struct {
	ID          string
	OutputFiles map[string]string
	Timestamp   time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task reaches failed.
type TaskFailedEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a task reaches cancelled.
type TaskCancelledEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// IsTerminal reports whether e marks the end of a task.
func IsTerminal(e Event) bool {
	switch e.EventType() {
	case EventTypeTaskCompleted, EventTypeTaskFailed, EventTypeTaskCancelled:
		return true
	}
	return false
}
