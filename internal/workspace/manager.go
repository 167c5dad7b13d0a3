package workspace

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrInvalidTaskID is returned for ids that cannot name a directory.
var ErrInvalidTaskID = errors.New("invalid task id")

// ErrOutsideWorkspace is returned when a path escapes its task directory.
var ErrOutsideWorkspace = errors.New("path outside task workspace")

// Manager owns the per-task output directories under one root.
type Manager struct {
	root string
	mu   sync.Mutex // Serializes cleanup against creation
}

// NewManager creates a manager rooted at root. The directory is created on demand.
func NewManager(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute output root.
func (m *Manager) Root() string {
	return m.root
}

func validID(taskID string) bool {
	return taskID != "" && taskID != "." && taskID != ".." &&
		!strings.ContainsAny(taskID, `/\`)
}

// Path returns the workspace of taskID without touching the filesystem.
func (m *Manager) Path(taskID string) (Info, error) {
	if !validID(taskID) {
		return Info{}, fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	return Info{TaskID: taskID, Path: filepath.Join(m.root, taskID)}, nil
}

// Create makes the workspace directories of taskID. Existing files are kept,
// so a resumed task reuses its workspace.
func (m *Manager) Create(taskID string) (Info, error) {
	info, err := m.Path(taskID)
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dir := range []string{info.CodeDir(), info.HTMLDir(), info.ScreenshotDir(), info.DocsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Info{}, fmt.Errorf("failed to create workspace for %s: %w", taskID, err)
		}
	}
	return info, nil
}

// Resolve maps a path inside the workspace of taskID to an absolute path.
// Absolute paths are accepted when they lie inside the workspace.
func (m *Manager) Resolve(taskID, path string) (string, error) {
	info, err := m.Path(taskID)
	if err != nil {
		return "", err
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(info.Path, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(info.Path, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	return abs, nil
}

// WriteFile writes data under the workspace of taskID, creating parent directories.
// It returns the absolute path written.
func (m *Manager) WriteFile(taskID, rel string, data []byte) (string, error) {
	path, err := m.Resolve(taskID, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return path, nil
}

// Remove deletes the workspace of taskID. A missing workspace is not an error.
func (m *Manager) Remove(taskID string) error {
	info, err := m.Path(taskID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.RemoveAll(info.Path); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", taskID, err)
	}
	return nil
}

// List returns all task workspaces under the root, sorted by task id.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	infos := []Info{}
	for _, e := range entries {
		if !e.IsDir() || !validID(e.Name()) {
			continue
		}
		infos = append(infos, Info{TaskID: e.Name(), Path: filepath.Join(m.root, e.Name())})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TaskID < infos[j].TaskID })
	return infos, nil
}

// Cleanup removes workspaces whose directory was last modified before cutoff,
// skipping ids for which keep returns true. It returns the removed task ids.
func (m *Manager) Cleanup(cutoff time.Time, keep func(taskID string) bool) ([]string, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for _, info := range infos {
		if keep != nil && keep(info.TaskID) {
			continue
		}
		st, err := os.Stat(info.Path)
		if err != nil || !st.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(info.Path); err != nil {
			log.Printf("WARNING: failed to remove expired workspace %s: %v", info.TaskID, err)
			continue
		}
		removed = append(removed, info.TaskID)
	}
	return removed, nil
}
