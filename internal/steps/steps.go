// Package steps holds the default bodies of the six generation steps.
package steps

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/aristath/docforge/internal/llm"
	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/workspace"
)

// Generator produces text for a prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxRetries int) (string, error)
}

// Completer performs the completion transition of a task. *task.Manager satisfies it.
type Completer interface {
	CompleteTask(taskID string, outputFiles map[string]string)
}

// Deps are the collaborators shared by the default steps.
type Deps struct {
	Generator    Generator
	Completer    Completer
	Workspace    *workspace.Manager
	Capturer     Capturer // nil renders placeholder screenshots only
	TemplatesDir string   // Root of per-stack code templates
	MaxRetries   int      // Attempts per adapter for the feature list
}

// Default returns the six steps in pipeline order.
func Default(d Deps) []orchestrator.Step {
	if d.MaxRetries < 1 {
		d.MaxRetries = llm.DefaultMaxRetries
	}
	return []orchestrator.Step{
		&FeatureStep{deps: d},
		&SourceStep{deps: d},
		&PageStep{deps: d},
		&CaptureStep{deps: d},
		&DocumentStep{deps: d},
		&PackageStep{deps: d},
	}
}

var (
	slugPattern   = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fff}]+`)
	camelSplit    = regexp.MustCompile(`[_\-\s]+`)
	arrayPattern  = regexp.MustCompile(`\[[\s\S]*\]`)
	objectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
)

// slug turns a feature name into a file-name fragment.
func slug(s string) string {
	out := strings.ToLower(strings.Trim(slugPattern.ReplaceAllString(s, "_"), "_"))
	if out == "" {
		return "feature"
	}
	return out
}

func camel(s string) string {
	var b strings.Builder
	for _, part := range camelSplit.Split(s, -1) {
		if part == "" {
			continue
		}
		r := []rune(part)
		b.WriteString(strings.ToUpper(string(r[0])))
		b.WriteString(string(r[1:]))
	}
	if b.Len() == 0 {
		return "Feature"
	}
	return b.String()
}

// safeFileName keeps every letter and digit of s, replacing the rest.
func safeFileName(s string) string {
	out := strings.Trim(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s), "_")
	if out == "" {
		return "feature"
	}
	return out
}

// documentName strips characters that are invalid in file names on common platforms.
func documentName(s string) string {
	out := strings.TrimSpace(strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) {
			return '_'
		}
		return r
	}, s))
	if out == "" {
		return "软著材料"
	}
	return out
}

// extractJSON returns the outermost JSON array or object embedded in model output.
func extractJSON(raw string, pattern *regexp.Regexp) string {
	text := strings.TrimSpace(raw)
	if m := pattern.FindString(text); m != "" {
		return m
	}
	return text
}

// countLines counts lines the way the source listing does: a trailing
// newline opens one more line, an empty file has none.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

func totalLines(code map[string]string) int {
	n := 0
	for _, c := range code {
		n += countLines(c)
	}
	return n
}

// splitLines splits content into lines without a phantom final empty line.
func splitLines(content string) []string {
	content = strings.TrimSuffix(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
