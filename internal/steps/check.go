package steps

import (
	"fmt"
	"strings"

	"github.com/aristath/docforge/internal/project"
)

// minLineRatio is the share of the target line count below which documents are not assembled.
const minLineRatio = 0.6

// Report lists the consistency problems of a context. Errors block document assembly.
type Report struct {
	Warnings []string
	Errors   []string
}

// OK reports whether the context has no blocking errors.
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

// CheckConsistency verifies that every feature is backed by code and a
// screenshot, and that the code is long enough for the target.
func CheckConsistency(pc *project.Context) Report {
	var r Report
	for _, f := range pc.Features {
		if len(f.CodeFiles) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("feature %q has no source files", f.Name))
		}
		if f.PageType != "" && f.ScreenshotPath == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("feature %q has no screenshot", f.Name))
		}
		if strings.Contains(f.ScreenshotPath, "placeholder") {
			r.Warnings = append(r.Warnings, fmt.Sprintf("feature %q uses a placeholder screenshot", f.Name))
		}
	}

	if minLines := int(float64(pc.TargetLines) * minLineRatio); pc.TotalLines < minLines {
		r.Errors = append(r.Errors, fmt.Sprintf("source has %d lines, below the minimum %d", pc.TotalLines, minLines))
	}
	return r
}
