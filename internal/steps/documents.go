package steps

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/workspace"
)

// Output document keys.
const (
	DocSource      = "source"
	DocManual      = "manual"
	DocApplication = "application"
	DocBundle      = "bundle"
)

// maxListingLines caps the source listing at 60 pages of 50 lines. Longer
// listings keep the first and last halves.
const maxListingLines = 60 * 50

const softwareVersion = "V1.0"

// manualFields are left blank on the application form for the applicant.
var manualFields = []string{"著作权人", "证件号码", "联系地址", "联系电话", "权利取得方式", "权利范围"}

// DocumentStep checks consistency and assembles the source listing, the
// operation manual and the application form.
type DocumentStep struct {
	deps Deps
}

func (s *DocumentStep) Name() string { return "Assemble documents" }

func (s *DocumentStep) Run(ctx context.Context, taskID string, pc *project.Context) (orchestrator.Outcome, error) {
	report := CheckConsistency(pc)
	if !report.OK() {
		return orchestrator.Failed(strings.Join(report.Errors, "; ")), nil
	}

	if _, err := s.deps.Workspace.Create(taskID); err != nil {
		return orchestrator.Outcome{}, err
	}

	base := documentName(pc.SoftwareName)
	docs := []struct {
		key, name string
		build     func() *document
	}{
		{DocSource, base + "_源程序", func() *document { return sourceListing(pc) }},
		{DocManual, base + "_操作手册", func() *document { return s.manual(taskID, pc) }},
		{DocApplication, base + "_申请表", func() *document { return applicationForm(pc) }},
	}

	warnings := report.Warnings
	files := make(map[string]string, len(docs))
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return orchestrator.Outcome{}, err
		}
		rel, err := s.write(taskID, d.name, d.build())
		if err != nil {
			return orchestrator.Outcome{}, err
		}
		if path.Ext(rel) == ".txt" {
			warnings = append(warnings, d.name+" written as plain text")
		}
		files[d.key] = rel
	}
	pc.OutputFiles = files

	if len(warnings) > 0 {
		return orchestrator.Warned("documents generated with issues: " + strings.Join(warnings, "; ")), nil
	}
	return orchestrator.Succeeded("documents generated"), nil
}

// write saves doc as docs/<name>.docx, falling back to docs/<name>.txt, and
// returns the workspace path written.
func (s *DocumentStep) write(taskID, name string, doc *document) (string, error) {
	rel := path.Join(workspace.DocsPath, name+".docx")
	dest, err := s.deps.Workspace.Resolve(taskID, rel)
	if err != nil {
		return "", err
	}
	err = doc.saveDocx(dest)
	if err == nil {
		return rel, nil
	}
	log.Printf("WARNING: task %s: %v, writing plain text instead", taskID, err)

	rel = path.Join(workspace.DocsPath, name+".txt")
	if _, err := s.deps.Workspace.WriteFile(taskID, rel, []byte(doc.Text())); err != nil {
		return "", err
	}
	return rel, nil
}

type listingLine struct {
	file, text string
}

// sourceListing numbers the lines of every file, restarting at each file.
func sourceListing(pc *project.Context) *document {
	var lines []listingLine
	for _, p := range sortedKeys(pc.GeneratedCode) {
		for _, l := range splitLines(pc.GeneratedCode[p]) {
			lines = append(lines, listingLine{file: p, text: l})
		}
	}
	if len(lines) > maxListingLines {
		half := maxListingLines / 2
		lines = append(lines[:half:half], lines[len(lines)-half:]...)
	}

	doc := &document{}
	doc.title(pc.SoftwareName + " 源程序文档")
	current := ""
	n := 0
	for _, l := range lines {
		if l.file != current {
			doc.heading("## " + l.file)
			current = l.file
			n = 0
		}
		n++
		doc.textf("%04d  %s", n, l.text)
	}
	return doc
}

func (s *DocumentStep) manual(taskID string, pc *project.Context) *document {
	doc := &document{}
	doc.title(pc.SoftwareName)
	doc.textf("操作手册")
	doc.textf("编写日期：%s", pc.CompletionDate)
	doc.pageBreak()

	doc.heading("1. 引言")
	doc.textf("%s", pc.Description)

	doc.heading("2. 运行环境")
	doc.textf("软件环境：%s", orDefault(pc.Stack.Runtime, "见部署说明"))
	doc.textf("开发工具：%s", orDefault(pc.Stack.DevTools, "见部署说明"))
	doc.textf("操作系统：%s", orDefault(pc.Stack.OS, "Windows/Linux"))

	doc.heading("3. 功能说明")
	for i, f := range pc.Features {
		doc.heading(fmt.Sprintf("3.%d %s", i+1, f.Name))
		doc.textf("%s", f.Description)
		doc.textf("%s", orDefault(f.OperationSteps, "进入对应模块，根据页面提示完成操作。"))
		if src, ok := s.screenshot(taskID, f.ScreenshotPath); ok {
			doc.figure(fmt.Sprintf("图%d %s界面", i+1, f.Name), src, f.ScreenshotPath)
		} else {
			doc.textf("截图缺失，请后续补充真实截图。")
		}
	}
	return doc
}

// screenshot resolves rel to an existing file in the task workspace.
func (s *DocumentStep) screenshot(taskID, rel string) (string, bool) {
	if rel == "" {
		return "", false
	}
	p, err := s.deps.Workspace.Resolve(taskID, rel)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

func applicationForm(pc *project.Context) *document {
	doc := &document{}
	doc.title("计算机软件著作权登记申请表（自动生成草稿）")
	rows := [][2]string{
		{"软件全称", pc.SoftwareName},
		{"软件简称", pc.ShortName},
		{"版本号", softwareVersion},
		{"开发完成日期", pc.CompletionDate},
		{"源程序量", fmt.Sprint(pc.TotalLines)},
		{"编程语言", pc.Stack.Languages},
		{"主要功能", pc.FeatureSummary},
		{"运行环境", pc.Stack.OS},
		{"软件环境", pc.Stack.Runtime},
		{"开发工具", pc.Stack.DevTools},
	}
	for _, r := range rows {
		doc.textf("%s：%s", r[0], r[1])
	}
	doc.heading("以下字段需手动填写：")
	for _, f := range manualFields {
		doc.textf("- %s", f)
	}
	return doc
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
