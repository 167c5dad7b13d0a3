package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/docforge/internal/techstack"
)

// Target line bounds for the generated source listing.
const (
	DefaultTargetLines = 5000
	MinTargetLines     = 3000
	MaxTargetLines     = 8000
)

// Page types a feature can be rendered as.
var PageTypes = []string{"login", "dashboard", "list", "form", "detail", "chart"}

// Feature is one functional module of the described software. It is the unit
// that source files, pages, screenshots and manual sections are kept consistent on.
type Feature struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PageType       string   `json:"page_type"`
	ManualSection  string   `json:"manual_section,omitempty"`
	CodeFiles      []string `json:"code_files,omitempty"`
	HTMLPath       string   `json:"html_path,omitempty"`
	ScreenshotPath string   `json:"screenshot_path,omitempty"`
	OperationSteps string   `json:"operation_steps,omitempty"`
}

// Context is the aggregate accumulated by the pipeline steps during one run.
// It is mutated by one step at a time and serialized into checkpoints.
type Context struct {
	SoftwareName   string            `json:"software_name"`
	ShortName      string            `json:"short_name"`
	Description    string            `json:"description"`
	TechStackID    string            `json:"tech_stack_id"`
	Stack          techstack.Stack   `json:"tech_config"`
	TargetLines    int               `json:"target_lines"`
	CompletionDate string            `json:"completion_date"`
	Features       []Feature         `json:"feature_list"`
	GeneratedCode  map[string]string `json:"generated_code"`
	Pages          map[string]string `json:"generated_html_pages"`
	Screenshots    map[string]string `json:"screenshots"`
	OutputFiles    map[string]string `json:"output_files"`
	TotalLines     int               `json:"total_lines"`
	FeatureSummary string            `json:"feature_summary"`
}

// Request is a submission as received from a client.
type Request struct {
	SoftwareName   string `json:"software_name"`
	Description    string `json:"description"`
	TechStack      string `json:"tech_stack"`
	TargetLines    int    `json:"target_lines"`
	CompletionDate string `json:"completion_date"`
}

// ErrInvalidRequest marks a submission rejected by validation.
var ErrInvalidRequest = errors.New("invalid request")

// Validate checks required fields and normalizes the rest in place.
func (r *Request) Validate(now time.Time) error {
	r.SoftwareName = strings.TrimSpace(r.SoftwareName)
	r.Description = strings.TrimSpace(r.Description)
	r.TechStack = strings.TrimSpace(r.TechStack)

	switch {
	case r.SoftwareName == "":
		return fmt.Errorf("%w: software_name is required", ErrInvalidRequest)
	case r.Description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidRequest)
	case r.TechStack == "":
		return fmt.Errorf("%w: tech_stack is required", ErrInvalidRequest)
	}

	if r.TargetLines == 0 {
		r.TargetLines = DefaultTargetLines
	}
	r.TargetLines = ClampTargetLines(r.TargetLines)

	if strings.TrimSpace(r.CompletionDate) == "" {
		r.CompletionDate = now.Format("2006-01-02")
	}
	return nil
}

// NewContext builds the initial pipeline context for a validated request.
func NewContext(r Request, stack techstack.Stack) *Context {
	return &Context{
		SoftwareName:   r.SoftwareName,
		ShortName:      ShortName(r.SoftwareName),
		Description:    r.Description,
		TechStackID:    r.TechStack,
		Stack:          stack,
		TargetLines:    r.TargetLines,
		CompletionDate: r.CompletionDate,
	}
}

// ClampTargetLines bounds n to [MinTargetLines, MaxTargetLines].
func ClampTargetLines(n int) int {
	if n < MinTargetLines {
		return MinTargetLines
	}
	if n > MaxTargetLines {
		return MaxTargetLines
	}
	return n
}

// ShortName strips a leading "based on X's" / "for X's" qualifier from a software name.
func ShortName(name string) string {
	for _, prefix := range []string{"基于", "面向"} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if idx := strings.Index(name, "的"); idx > 0 {
			if rest := name[idx+len("的"):]; rest != "" {
				return rest
			}
		}
		break
	}
	return name
}

// Snapshot serializes the context for checkpoints and task records.
func (c *Context) Snapshot() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

// Restore replaces the context with a previously taken snapshot.
// On a decode error the context is left untouched.
func (c *Context) Restore(data []byte) error {
	var restored Context
	if err := json.Unmarshal(data, &restored); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}
	*c = restored
	return nil
}

// FeatureNames returns the feature names in order.
func (c *Context) FeatureNames() []string {
	names := make([]string, 0, len(c.Features))
	for _, f := range c.Features {
		names = append(names, f.Name)
	}
	return names
}
