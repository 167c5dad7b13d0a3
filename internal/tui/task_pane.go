package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/task"
)

const (
	listWidth     = 28
	maxOutputRows = 500
)

// TaskView is what the monitor knows about one task.
type TaskView struct {
	ID        string
	Name      string
	Status    task.Status
	Step      int
	StepName  string
	Progress  int
	Output    []string
	StartTime time.Time
}

func (v *TaskView) appendOutput(line string) {
	v.Output = append(v.Output, line)
	if len(v.Output) > maxOutputRows {
		v.Output = v.Output[len(v.Output)-maxOutputRows:]
	}
}

// TaskPaneModel is the task list with the selected task's log beside it.
type TaskPaneModel struct {
	tasks       map[string]*TaskView
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTaskPaneModel creates a task pane seeded with already known tasks.
func NewTaskPaneModel(initial []*task.State) TaskPaneModel {
	m := TaskPaneModel{
		tasks:    make(map[string]*TaskView),
		viewport: viewport.New(0, 0),
	}
	for _, st := range initial {
		v := &TaskView{
			ID:        st.ID,
			Name:      taskName(st),
			Status:    st.Status,
			Step:      st.CurrentStep,
			StepName:  st.StepName,
			Progress:  st.Progress,
			StartTime: st.CreatedAt,
		}
		for _, entry := range st.Logs {
			v.appendOutput(formatLine(entry.Time, entry.Message))
		}
		m.tasks[st.ID] = v
		m.order = append(m.order, st.ID)
	}
	m.updateViewportContent()
	return m
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskSubmittedEvent:
		v, exists := m.tasks[msg.ID]
		if !exists {
			v = &TaskView{ID: msg.ID, StartTime: msg.Timestamp}
			m.tasks[msg.ID] = v
			m.order = append(m.order, msg.ID)
		}
		v.Name = msg.SoftwareName
		if v.Name == "" {
			v.Name = shortID(msg.ID)
		}
		v.Status = task.StatusPending
		if msg.Resumed {
			v.appendOutput(formatLine(msg.Timestamp, task.ResumedMessage))
		}
		if len(m.order) == 1 || m.SelectedID() == msg.ID {
			m.updateViewportContent()
		}

	case events.TaskProgressEvent:
		if v, ok := m.tasks[msg.ID]; ok {
			v.Status = task.StatusProcessing
			v.Step = msg.Step
			v.StepName = msg.StepName
			v.Progress = msg.Progress
		}

	case events.TaskLogEvent:
		if v, ok := m.tasks[msg.ID]; ok {
			v.appendOutput(formatLine(msg.Timestamp, msg.Line))
			if m.SelectedID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskWarningEvent:
		m.finishLine(msg.ID, "", StyleWarning.Render("[Warning] "+msg.Warning), msg.Timestamp)

	case events.TaskCompletedEvent:
		if v, ok := m.tasks[msg.ID]; ok {
			v.Progress = 100
		}
		m.finishLine(msg.ID, task.StatusCompleted, fmt.Sprintf("[Completed in %v, %d files]", m.elapsed(msg.ID, msg.Timestamp), len(msg.OutputFiles)), msg.Timestamp)

	case events.TaskFailedEvent:
		m.finishLine(msg.ID, task.StatusFailed, "[Failed: "+msg.Message+"]", msg.Timestamp)

	case events.TaskCancelledEvent:
		m.finishLine(msg.ID, task.StatusCancelled, "[Cancelled: "+msg.Message+"]", msg.Timestamp)

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// finishLine appends a marker line to a task and optionally moves it to status.
func (m *TaskPaneModel) finishLine(id string, status task.Status, line string, at time.Time) {
	v, ok := m.tasks[id]
	if !ok {
		return
	}
	if status != "" {
		v.Status = status
	}
	v.appendOutput(formatLine(at, line))
	if m.SelectedID() == id {
		m.updateViewportContent()
	}
}

func (m TaskPaneModel) elapsed(id string, at time.Time) time.Duration {
	v, ok := m.tasks[id]
	if !ok || v.StartTime.IsZero() {
		return 0
	}
	return at.Sub(v.StartTime).Round(time.Second)
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		v := m.tasks[id]
		name := []rune(v.Name)
		if len(name) > width-12 {
			name = append(name[:width-15], []rune("...")...)
		}

		line := fmt.Sprintf("%s %s %3d%%", StatusIcon(v.Status), string(name), v.Progress)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status task.Status) string {
	switch status {
	case task.StatusProcessing:
		return StyleStatusRunning.Render("●")
	case task.StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case task.StatusFailed:
		return StyleStatusFailed.Render("✗")
	case task.StatusCancelled, task.StatusInterrupted:
		return StyleStatusStopped.Render("■")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedID returns the id of the selected task, or "" when there is none.
func (m TaskPaneModel) SelectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Selected returns the selected task view.
func (m TaskPaneModel) Selected() (*TaskView, bool) {
	v, ok := m.tasks[m.SelectedID()]
	return v, ok
}

// Counts returns the number of known tasks per status.
func (m TaskPaneModel) Counts() map[task.Status]int {
	counts := make(map[task.Status]int)
	for _, v := range m.tasks {
		counts[v.Status]++
	}
	return counts
}

func (m *TaskPaneModel) updateViewportContent() {
	v, ok := m.Selected()
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(v.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func formatLine(at time.Time, line string) string {
	if at.IsZero() {
		return line
	}
	return at.Format("15:04:05") + " " + line
}

// taskName reads the software name out of the task's context snapshot.
func taskName(st *task.State) string {
	var snap struct {
		SoftwareName string `json:"software_name"`
	}
	if len(st.Context) > 0 && json.Unmarshal(st.Context, &snap) == nil && snap.SoftwareName != "" {
		return snap.SoftwareName
	}
	return shortID(st.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
