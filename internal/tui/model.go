// Package tui is a terminal monitor for running generation tasks.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/task"
)

// Tasks is the part of the task manager the monitor uses.
type Tasks interface {
	List() []*task.State
	Cancel(id string) bool
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	focusedPane  PaneID
	tasks        Tasks
	eventSub     <-chan events.Event
	unsubscribe  func()
	status       string
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model showing the tasks already known to tasks and
// following every event on the bus.
func New(eventBus *events.EventBus, tasks Tasks) Model {
	sub, unsubscribe := eventBus.SubscribeAll(256)
	m := Model{
		taskPane:     NewTaskPaneModel(tasks.List()),
		progressPane: NewProgressPaneModel(),
		focusedPane:  PaneTasks,
		tasks:        tasks,
		eventSub:     sub,
		unsubscribe:  unsubscribe,
	}
	m.refreshProgress()
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			m.unsubscribe()
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyCancel:
			m.status = m.cancelSelected()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
				m.refreshProgress()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.refreshProgress()
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) cancelSelected() string {
	id := m.taskPane.SelectedID()
	if id == "" {
		return "no task selected"
	}
	if !m.tasks.Cancel(id) {
		return "task " + shortID(id) + " cannot be cancelled"
	}
	return "cancelling " + shortID(id)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	mainContent := lipgloss.JoinVertical(lipgloss.Left, m.taskPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView(m.status))
}

// computeLayout splits the screen between the task pane and the progress pane.
func (m *Model) computeLayout() {
	availableHeight := m.height - 1 // help bar
	taskHeight := (availableHeight * 70) / 100

	m.taskPane.SetSize(m.width, taskHeight)
	m.progressPane.SetSize(m.width, availableHeight-taskHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}

func (m *Model) refreshProgress() {
	selected, _ := m.taskPane.Selected()
	m.progressPane.SetState(m.taskPane.Counts(), selected)
}
