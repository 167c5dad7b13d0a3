package steps

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"path"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/workspace"
)

//go:embed templates/page.html.tmpl
var pageFS embed.FS

var pageTemplate = template.Must(template.ParseFS(pageFS, "templates/page.html.tmpl"))

// Rendering limits per page.
const (
	maxMenus   = 8
	maxFields  = 12
	maxColumns = 10
	maxRows    = 20
)

type pageField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// pagePayload is the content of one page.
type pagePayload struct {
	Title        string           `json:"title"`
	Subtitle     string           `json:"subtitle"`
	Menus        []string         `json:"menus"`
	Fields       []pageField      `json:"fields"`
	TableColumns []string         `json:"table_columns"`
	SampleRows   []map[string]any `json:"sample_rows"`
	ChartTitle   string           `json:"chart_title"`
	ChartSummary string           `json:"chart_summary"`
}

type pageView struct {
	SoftwareName string
	PageType     string
	Title        string
	Subtitle     string
	Menus        []string
	Fields       []pageField
	Columns      []string
	Rows         [][]string
	ChartTitle   string
	ChartSummary string
	ShowFields   bool
	ShowTable    bool
	ShowChart    bool
}

// PageStep renders one HTML page per feature into the task workspace.
type PageStep struct {
	deps Deps
}

func (s *PageStep) Name() string { return "Generate HTML pages" }

func (s *PageStep) Run(ctx context.Context, taskID string, pc *project.Context) (orchestrator.Outcome, error) {
	info, err := s.deps.Workspace.Create(taskID)
	if err != nil {
		return orchestrator.Outcome{}, err
	}
	if err := os.RemoveAll(info.HTMLDir()); err != nil {
		return orchestrator.Outcome{}, fmt.Errorf("failed to clear page directory: %w", err)
	}

	pages := make(map[string]string, len(pc.Features))
	for i := range pc.Features {
		if err := ctx.Err(); err != nil {
			return orchestrator.Outcome{}, err
		}
		f := &pc.Features[i]

		payload := s.payload(ctx, taskID, f)
		if ctx.Err() != nil {
			return orchestrator.Outcome{}, ctx.Err()
		}

		html, err := renderPage(pc.SoftwareName, f.PageType, payload)
		if err != nil {
			return orchestrator.Outcome{}, fmt.Errorf("failed to render page for %q: %w", f.Name, err)
		}

		rel := path.Join(workspace.HTMLPath, fmt.Sprintf("%02d_%s.html", i+1, slug(f.Name)))
		if _, err := s.deps.Workspace.WriteFile(taskID, rel, html); err != nil {
			return orchestrator.Outcome{}, err
		}
		f.HTMLPath = rel
		pages[f.Name] = f.HTMLPath
	}
	pc.Pages = pages

	return orchestrator.Succeeded(fmt.Sprintf("HTML pages generated, %d pages", len(pages))), nil
}

func (s *PageStep) payload(ctx context.Context, taskID string, f *project.Feature) pagePayload {
	fallback := fallbackPayload(f.Name, f.Description)

	raw, err := s.deps.Generator.Generate(ctx, pagePrompt(f), codeMaxRetries)
	if err != nil {
		log.Printf("WARNING: [%s] AI page content failed for %q, using defaults: %v", taskID, f.Name, err)
		return fallback
	}
	payload, err := parsePayload(raw, fallback)
	if err != nil {
		log.Printf("WARNING: [%s] unusable page content for %q, using defaults: %v", taskID, f.Name, err)
		return fallback
	}
	return payload
}

func pagePrompt(f *project.Feature) string {
	return "你是资深前端设计师。请为Web管理系统的一个页面生成展示数据。\n" +
		"要求：输出严格JSON对象，不要markdown，不要解释。\n" +
		"字段：title, subtitle, menus(字符串数组), fields(数组，元素含name,label,type), " +
		"table_columns(字符串数组), sample_rows(对象数组，键为列名), chart_title, chart_summary。\n" +
		"页面类型: " + f.PageType + "\n" +
		"功能名称: " + f.Name + "\n" +
		"功能描述: " + f.Description + "\n"
}

// parsePayload overlays the content found in model output on fallback.
// Empty strings and absent lists keep their fallback values.
func parsePayload(raw string, fallback pagePayload) (pagePayload, error) {
	var got pagePayload
	if err := json.Unmarshal([]byte(extractJSON(raw, objectPattern)), &got); err != nil {
		return fallback, fmt.Errorf("failed to parse page content: %w", err)
	}

	p := fallback
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&p.Title, got.Title)
	overlay(&p.Subtitle, got.Subtitle)
	overlay(&p.ChartTitle, got.ChartTitle)
	overlay(&p.ChartSummary, got.ChartSummary)
	if got.Menus != nil {
		p.Menus = got.Menus
	}
	if got.Fields != nil {
		p.Fields = got.Fields
	}
	if got.TableColumns != nil {
		p.TableColumns = got.TableColumns
	}
	if got.SampleRows != nil {
		p.SampleRows = got.SampleRows
	}
	return p, nil
}

func fallbackPayload(name, description string) pagePayload {
	return pagePayload{
		Title:    name,
		Subtitle: description,
		Menus:    []string{"首页", "业务管理", "统计分析"},
		Fields: []pageField{
			{Name: "name", Label: "名称", Type: "text"},
			{Name: "status", Label: "状态", Type: "select"},
			{Name: "owner", Label: "负责人", Type: "text"},
			{Name: "updated_at", Label: "更新时间", Type: "date"},
		},
		TableColumns: []string{"编号", "名称", "状态"},
		SampleRows: []map[string]any{
			{"编号": "1", "名称": name + "样例A", "状态": "启用"},
			{"编号": "2", "名称": name + "样例B", "状态": "停用"},
			{"编号": "3", "名称": name + "样例C", "状态": "启用"},
		},
		ChartTitle:   name + "趋势",
		ChartSummary: "近三个月整体指标稳定增长。",
	}
}

// renderPage lays out payload for pageType. Every value is escaped by html/template.
func renderPage(softwareName, pageType string, p pagePayload) ([]byte, error) {
	v := pageView{
		SoftwareName: softwareName,
		PageType:     pageType,
		Title:        p.Title,
		Subtitle:     p.Subtitle,
		Menus:        p.Menus[:min(len(p.Menus), maxMenus)],
		Fields:       p.Fields[:min(len(p.Fields), maxFields)],
		Columns:      p.TableColumns[:min(len(p.TableColumns), maxColumns)],
		ChartTitle:   p.ChartTitle,
		ChartSummary: p.ChartSummary,
	}
	for i := range v.Fields {
		if v.Fields[i].Label == "" {
			v.Fields[i].Label = v.Fields[i].Name
		}
		if v.Fields[i].Label == "" {
			v.Fields[i].Label = "字段"
		}
	}
	for _, row := range p.SampleRows[:min(len(p.SampleRows), maxRows)] {
		cells := make([]string, len(v.Columns))
		for i, c := range v.Columns {
			if val, ok := row[c]; ok && val != nil {
				cells[i] = fmt.Sprint(val)
			}
		}
		v.Rows = append(v.Rows, cells)
	}

	switch pageType {
	case "login", "form":
		v.ShowFields = true
	case "dashboard":
		v.ShowTable, v.ShowChart = true, true
	case "detail":
		v.ShowFields, v.ShowTable = true, true
	case "chart":
		v.ShowChart, v.ShowTable = true, true
	default:
		v.ShowTable = true
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
