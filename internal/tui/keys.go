package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyCancel   = "c"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(status string) string {
	help := "Tab: cycle focus | 1/2: jump to pane | j/k: select | c: cancel task | q: quit"
	if status != "" {
		help += " | " + status
	}
	return StyleHelp.Render(help)
}
