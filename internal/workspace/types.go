package workspace

import "path/filepath"

// Subdirectories of a task workspace, relative to its root.
const (
	CodePath       = "work/code"
	HTMLPath       = "work/html"
	ScreenshotPath = "screenshots"
	DocsPath       = "docs"
)

// Info locates the files of one task.
type Info struct {
	TaskID string // Task the workspace belongs to
	Path   string // Absolute path to the task directory
}

// CodeDir holds generated source files.
func (i Info) CodeDir() string { return filepath.Join(i.Path, CodePath) }

// HTMLDir holds rendered pages.
func (i Info) HTMLDir() string { return filepath.Join(i.Path, HTMLPath) }

// ScreenshotDir holds page captures.
func (i Info) ScreenshotDir() string { return filepath.Join(i.Path, ScreenshotPath) }

// DocsDir holds the assembled documents and the bundle.
func (i Info) DocsDir() string { return filepath.Join(i.Path, DocsPath) }
