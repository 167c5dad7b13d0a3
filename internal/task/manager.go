package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/scheduler"
)

// Runner executes the pipeline for one task.
type Runner func(ctx context.Context, taskID string, pc *project.Context) error

// Manager owns task lifecycle transitions and the pool that runs them.
// Each scheduled task keeps a pool handle until its done callback fires.
type Manager struct {
	store *Store
	pool  *scheduler.Pool
	bus   *events.EventBus
	now   func() time.Time

	mu      sync.Mutex
	handles map[string]*scheduler.Handle
}

// NewManager creates a manager. bus may be nil.
func NewManager(store *Store, pool *scheduler.Pool, bus *events.EventBus) *Manager {
	return &Manager{
		store:   store,
		pool:    pool,
		bus:     bus,
		now:     time.Now,
		handles: make(map[string]*scheduler.Handle),
	}
}

// Submit records a new pending task for pc and schedules run on the pool.
// It returns as soon as the task is queued.
func (m *Manager) Submit(run Runner, pc *project.Context) (string, error) {
	snapshot, err := pc.Snapshot()
	if err != nil {
		return "", fmt.Errorf("failed to snapshot context: %w", err)
	}

	now := m.now()
	st := &State{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		TotalSteps:  TotalSteps,
		Message:     CreatedMessage,
		CreatedAt:   now,
		UpdatedAt:   now,
		Logs:        []LogEntry{},
		Warnings:    []string{},
		Errors:      []string{},
		OutputFiles: map[string]string{},
		Context:     snapshot,
	}
	m.store.Save(st)

	m.bus.Publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:           st.ID,
		SoftwareName: pc.SoftwareName,
		Timestamp:    now,
	})

	m.schedule(run, st.ID, pc)
	return st.ID, nil
}

// Resume reschedules a task that was interrupted by a restart, or that is still
// pending without a live pool handle. The pipeline picks up from its checkpoint.
// Concurrent calls for one id schedule at most one run.
func (m *Manager) Resume(run Runner, id string) error {
	pc, err := m.reserve(id)
	if err != nil {
		return err
	}

	if _, err := m.store.Update(id, func(s *State) {
		s.Status = StatusPending
		s.Message = ResumedMessage
	}); err != nil {
		m.unreserve(id)
		return fmt.Errorf("failed to resume task %s: %w", id, err)
	}

	m.bus.Publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:           id,
		SoftwareName: pc.SoftwareName,
		Resumed:      true,
		Timestamp:    m.now(),
	})

	m.schedule(run, id, pc)
	return nil
}

// reserve checks that id can be resumed and claims its handle slot with a nil
// placeholder, so no other caller can schedule it until schedule fills the slot.
func (m *Manager) reserve(id string) (*project.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, live := m.handles[id]; live || (st.Status != StatusInterrupted && st.Status != StatusPending) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResumable, id, st.Status)
	}

	pc := &project.Context{}
	if err := pc.Restore(st.Context); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotResumable, err)
	}

	m.handles[id] = nil
	return pc, nil
}

func (m *Manager) unreserve(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[id]; ok && h == nil {
		delete(m.handles, id)
	}
}

// schedule submits the run to the pool and records its handle.
// The lock is held across Submit so the done callback cannot release the slot
// before the handle is stored. The slot is only released by the run that owns it.
func (m *Manager) schedule(run Runner, id string, pc *project.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var h *scheduler.Handle
	h = m.pool.Submit(id, func(ctx context.Context) error {
		return run(ctx, id, pc)
	}, func(res scheduler.Result) {
		m.onDone(res)

		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.handles[id]; ok && cur == h {
			delete(m.handles, id)
		}
	})
	m.handles[id] = h
}

func (m *Manager) hasHandle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[id]
	return ok
}

// onDone handles a finished run. A run that returned an error is marked failed
// unless it already reached a terminal status. A run stopped by pool shutdown is
// left as is so it can be resumed after a restart.
func (m *Manager) onDone(res scheduler.Result) {
	if res.Removed || res.Err == nil {
		return
	}
	if errors.Is(res.Err, context.Canceled) {
		log.Printf("WARNING: task %s stopped by shutdown: %v", res.ID, res.Err)
		return
	}

	log.Printf("ERROR: task %s ended with error: %v", res.ID, res.Err)
	m.FailTask(res.ID, res.Err.Error())
}

// Get returns a copy of the task record.
func (m *Manager) Get(id string) (*State, bool) {
	return m.store.Get(id)
}

// List returns copies of all task records, oldest first.
func (m *Manager) List() []*State {
	return m.store.List()
}

// update applies fn and reports whether the record changed.
// Unknown ids and terminal records are silent no-ops.
func (m *Manager) update(id string, fn func(s *State)) (*State, bool) {
	st, err := m.store.Update(id, fn)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrTerminal) {
			log.Printf("ERROR: failed to update task %s: %v", id, err)
		}
		return nil, false
	}
	return st, true
}

// UpdateProgress moves the task to processing and records the current step.
func (m *Manager) UpdateProgress(id string, step int, name string, progress int, message string) {
	if message == "" {
		message = "running: " + name
	}
	if _, ok := m.update(id, func(s *State) {
		s.Status = StatusProcessing
		s.CurrentStep = step
		s.StepName = name
		s.Progress = progress
		s.Message = message
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskProgressEvent{
		ID:        id,
		Step:      step,
		StepName:  name,
		Progress:  progress,
		Message:   message,
		Timestamp: m.now(),
	})
}

// AddLog appends a timestamped log line. Logs may still be appended to finished tasks.
func (m *Manager) AddLog(id string, message string) {
	now := m.now()
	if _, ok := m.update(id, func(s *State) {
		s.Logs = append(s.Logs, LogEntry{Time: now, Message: message})
		if len(s.Logs) > maxLogEntries {
			s.Logs = s.Logs[len(s.Logs)-maxLogEntries:]
		}
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskLogEvent{ID: id, Line: message, Timestamp: now})
}

// AddWarning records a degraded-but-continuable problem.
func (m *Manager) AddWarning(id string, warning string) {
	if _, ok := m.update(id, func(s *State) {
		s.Warnings = append(s.Warnings, warning)
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskWarningEvent{ID: id, Warning: warning, Timestamp: m.now()})
}

// FailTask marks the task failed with message.
func (m *Manager) FailTask(id string, message string) {
	if _, ok := m.update(id, func(s *State) {
		s.Status = StatusFailed
		s.Message = message
		s.Errors = append(s.Errors, message)
		s.OutputFiles = map[string]string{}
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskFailedEvent{ID: id, Message: message, Timestamp: m.now()})
}

// CompleteTask marks the task completed with its output files.
func (m *Manager) CompleteTask(id string, outputFiles map[string]string) {
	files := maps.Clone(outputFiles)
	if _, ok := m.update(id, func(s *State) {
		s.Status = StatusCompleted
		s.CurrentStep = TotalSteps
		s.Progress = 100
		s.Message = CompletedMessage
		s.OutputFiles = files
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: id, OutputFiles: files, Timestamp: m.now()})
}

// MarkCancelled marks the task cancelled with message.
func (m *Manager) MarkCancelled(id string, message string) {
	if _, ok := m.update(id, func(s *State) {
		s.Status = StatusCancelled
		s.Message = message
		s.CancelRequested = true
		s.OutputFiles = map[string]string{}
	}); !ok {
		return
	}

	m.bus.Publish(events.TopicTask, events.TaskCancelledEvent{ID: id, Message: message, Timestamp: m.now()})
}

// UpdateContext stores a new snapshot of the pipeline context on the task.
func (m *Manager) UpdateContext(id string, snapshot []byte) {
	m.update(id, func(s *State) {
		s.Context = snapshot
	})
}

// IsCancelRequested reports whether cancellation was requested for the task.
func (m *Manager) IsCancelRequested(id string) bool {
	st, ok := m.store.Get(id)
	return ok && st.CancelRequested
}

// Cancel requests cancellation. It returns false for unknown or finished tasks.
// A task still waiting in the pool queue is removed and marked cancelled at once, as is
// a task with no live pool handle; a running task stops at its next step boundary.
func (m *Manager) Cancel(id string) bool {
	st, ok := m.store.Get(id)
	if !ok || st.Status.Terminal() {
		return false
	}

	if _, ok := m.update(id, func(s *State) {
		s.CancelRequested = true
		s.Message = CancelRequestedMessage
	}); !ok {
		return false
	}

	m.mu.Lock()
	h, live := m.handles[id]
	m.mu.Unlock()

	// A nil handle is a resume in progress; its run sees the flag before step 1.
	if !live || (h != nil && h.Cancel()) {
		m.MarkCancelled(id, CancelledMessage)
	}
	return true
}

// Purge deletes finished task records created before cutoff and returns their ids.
func (m *Manager) Purge(cutoff time.Time) []string {
	var purged []string
	for _, st := range m.store.List() {
		if !st.Status.Terminal() || !st.CreatedAt.Before(cutoff) || m.hasHandle(st.ID) {
			continue
		}
		m.store.Delete(st.ID)
		purged = append(purged, st.ID)
	}
	return purged
}
