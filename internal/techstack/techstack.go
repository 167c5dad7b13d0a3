package techstack

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStack is returned when no definition file exists for a stack id.
var ErrUnknownStack = errors.New("unknown tech stack")

// Stack describes one technology stack a generated project can target.
type Stack struct {
	ID               string            `yaml:"id" json:"id"`
	Name             string            `yaml:"name" json:"name"`
	Description      string            `yaml:"description" json:"description"`
	Languages        string            `yaml:"languages" json:"languages,omitempty"`
	Runtime          string            `yaml:"runtime" json:"runtime,omitempty"`
	DevTools         string            `yaml:"dev_tools" json:"dev_tools,omitempty"`
	OS               string            `yaml:"os" json:"os,omitempty"`
	CodeTemplatesDir string            `yaml:"code_templates_dir" json:"code_templates_dir,omitempty"`
	Environment      map[string]string `yaml:"environment" json:"environment,omitempty"`
}

// Summary is the short form of a stack offered to clients choosing one.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DisplayName returns the stack name, falling back to its id.
func (s Stack) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Parse decodes a YAML stack definition.
func Parse(data []byte) (Stack, error) {
	var s Stack
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Stack{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return s, nil
}

// Load reads the definition of stackID from <dir>/<stackID>.yaml.
// The file name is authoritative for the id when the file does not declare one.
func Load(dir, stackID string) (Stack, error) {
	if stackID == "" || strings.ContainsAny(stackID, `/\`) || strings.Contains(stackID, "..") {
		return Stack{}, fmt.Errorf("%w: %q", ErrUnknownStack, stackID)
	}

	data, err := os.ReadFile(filepath.Join(dir, stackID+".yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return Stack{}, fmt.Errorf("%w: %q", ErrUnknownStack, stackID)
		}
		return Stack{}, fmt.Errorf("failed to read tech stack %q: %w", stackID, err)
	}

	s, err := Parse(data)
	if err != nil {
		return Stack{}, fmt.Errorf("tech stack %q: %w", stackID, err)
	}
	if s.ID == "" {
		s.ID = stackID
	}
	return s, nil
}

// LoadAll returns a summary of every stack definition in dir, sorted by file name.
// Unreadable files are logged and skipped. A missing directory yields an empty list.
func LoadAll(dir string) ([]Summary, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tech stacks: %w", err)
	}
	sort.Strings(matches)

	summaries := []Summary{}
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".yaml")
		s, err := Load(dir, id)
		if err != nil {
			log.Printf("WARNING: skipping tech stack %s: %v", path, err)
			continue
		}
		summaries = append(summaries, Summary{
			ID:          s.ID,
			Name:        s.DisplayName(),
			Description: s.Description,
		})
	}
	return summaries, nil
}
