package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/docforge/internal/task"
)

// ProgressPaneModel shows totals across tasks and the step progress of the
// selected one.
type ProgressPaneModel struct {
	counts   map[task.Status]int
	selected *TaskView
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{counts: make(map[task.Status]int)}
}

// SetState replaces the totals and the selected task.
func (m *ProgressPaneModel) SetState(counts map[task.Status]int, selected *TaskView) {
	m.counts = counts
	m.selected = selected
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	running := m.counts[task.StatusProcessing]
	stopped := m.counts[task.StatusCancelled] + m.counts[task.StatusInterrupted]
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.counts[task.StatusPending])))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(running)))
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.counts[task.StatusCompleted])))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.counts[task.StatusFailed])))
	fmt.Fprintf(&b, "Stopped:   %s\n", StyleStatusStopped.Render(fmt.Sprint(stopped)))
	b.WriteString("\n")

	if v := m.selected; v != nil {
		fmt.Fprintf(&b, "%s  step %d/%d %s\n", v.Name, v.Step, task.TotalSteps, v.StepName)
		b.WriteString(ProgressBar(v.Progress, min(m.width-12, 40)))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// ProgressBar renders percent as a bar of the given width.
func ProgressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	width = max(width, 10)
	done := percent * width / 100

	bar := StyleStatusComplete.Render(strings.Repeat("=", done))
	bar += StyleStatusPending.Render(strings.Repeat(".", width-done))
	return fmt.Sprintf("[%s] %3d%%", bar, percent)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
