package tui

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/task"
)

type fakeTasks struct {
	states    []*task.State
	cancelled []string
	allow     bool
}

func (f *fakeTasks) List() []*task.State { return f.states }

func (f *fakeTasks) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return f.allow
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out
}

func TestNewSeedsKnownTasks(t *testing.T) {
	snap, _ := json.Marshal(map[string]string{"software_name": "库存管理系统"})
	tasks := &fakeTasks{states: []*task.State{{
		ID:          "0123456789abcdef",
		Status:      task.StatusProcessing,
		CurrentStep: 2,
		Progress:    40,
		Context:     snap,
		Logs:        []task.LogEntry{{Message: "step 2 started"}},
	}}}

	bus := events.NewEventBus()
	defer bus.Close()
	m := New(bus, tasks)

	v, ok := m.taskPane.Selected()
	if !ok {
		t.Fatal("expected the seeded task to be selected")
	}
	if v.Name != "库存管理系统" {
		t.Errorf("Name = %q", v.Name)
	}
	if len(v.Output) != 1 || v.Output[0] != "step 2 started" {
		t.Errorf("Output = %v", v.Output)
	}
	if got := m.taskPane.Counts()[task.StatusProcessing]; got != 1 {
		t.Errorf("processing count = %d, want 1", got)
	}
}

func TestEventsDriveTaskStatus(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	m := New(bus, &fakeTasks{})
	now := time.Now()

	m = update(t, m, events.TaskSubmittedEvent{ID: "t1", SoftwareName: "Inventory", Timestamp: now})
	m = update(t, m, events.TaskProgressEvent{ID: "t1", Step: 3, StepName: "Generate HTML pages", Progress: 50, Timestamp: now})

	v, _ := m.taskPane.Selected()
	if v.Status != task.StatusProcessing || v.Step != 3 || v.Progress != 50 {
		t.Errorf("after progress: %+v", v)
	}
	if m.progressPane.selected != v {
		t.Error("progress pane should follow the selected task")
	}

	m = update(t, m, events.TaskWarningEvent{ID: "t1", Warning: "2 of 3 screenshots are placeholders", Timestamp: now})
	m = update(t, m, events.TaskCompletedEvent{ID: "t1", OutputFiles: map[string]string{"source": "docs/a.txt"}, Timestamp: now.Add(3 * time.Second)})

	v, _ = m.taskPane.Selected()
	if v.Status != task.StatusCompleted || v.Progress != 100 {
		t.Errorf("after completion: status=%s progress=%d", v.Status, v.Progress)
	}
	joined := strings.Join(v.Output, "\n")
	if !strings.Contains(joined, "[Warning] 2 of 3") || !strings.Contains(joined, "[Completed in 3s, 1 files]") {
		t.Errorf("output missing markers:\n%s", joined)
	}

	m = update(t, m, events.TaskFailedEvent{ID: "unknown", Message: "boom"})
	if len(m.taskPane.order) != 1 {
		t.Errorf("events for unknown tasks should be ignored, order = %v", m.taskPane.order)
	}
}

func TestCancelKey(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	tasks := &fakeTasks{allow: true}
	m := New(bus, tasks)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyCancel)})
	if m.status != "no task selected" {
		t.Errorf("status = %q", m.status)
	}

	m = update(t, m, events.TaskSubmittedEvent{ID: "task-123456789", SoftwareName: "Inventory"})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyCancel)})
	if len(tasks.cancelled) != 1 || tasks.cancelled[0] != "task-123456789" {
		t.Errorf("cancelled = %v", tasks.cancelled)
	}
	if m.status != "cancelling task-123" {
		t.Errorf("status = %q", m.status)
	}
}

func TestSelectionAndView(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	m := New(bus, &fakeTasks{})

	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, events.TaskSubmittedEvent{ID: "a", SoftwareName: "Alpha"})
	m = update(t, m, events.TaskSubmittedEvent{ID: "b", SoftwareName: "Beta"})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyJ)})

	if got := m.taskPane.SelectedID(); got != "b" {
		t.Errorf("selected = %q, want b", got)
	}

	view := m.View()
	for _, want := range []string{"Tasks", "Alpha", "Beta", "Progress"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyQuit)})
	if m.View() != "Goodbye!\n" {
		t.Errorf("quit view = %q", m.View())
	}
}

func TestProgressBarClamps(t *testing.T) {
	if got := ProgressBar(150, 10); !strings.Contains(got, "100%") {
		t.Errorf("ProgressBar(150) = %q", got)
	}
	if got := ProgressBar(-5, 10); !strings.Contains(got, "  0%") {
		t.Errorf("ProgressBar(-5) = %q", got)
	}
}
