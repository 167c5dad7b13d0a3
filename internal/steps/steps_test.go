package steps

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/techstack"
	"github.com/aristath/docforge/internal/workspace"
)

// fakeGenerator answers prompts with respond. A nil respond fails every call.
type fakeGenerator struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, maxRetries int) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.respond == nil {
		return "", errors.New("model unavailable")
	}
	return g.respond(prompt)
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []map[string]string
}

func (c *fakeCompleter) CompleteTask(taskID string, files map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, files)
}

type fakeCapturer struct {
	fail bool
}

func (c fakeCapturer) Capture(ctx context.Context, pageURL, dest string) error {
	if c.fail {
		return errors.New("browser crashed")
	}
	if !strings.HasPrefix(pageURL, "file://") {
		return errors.New("unexpected url " + pageURL)
	}
	return os.WriteFile(dest, []byte("png"), 0644)
}

func newDeps(t *testing.T, gen *fakeGenerator) Deps {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return Deps{
		Generator:    gen,
		Completer:    &fakeCompleter{},
		Workspace:    ws,
		TemplatesDir: t.TempDir(),
		MaxRetries:   1,
	}
}

func newContext() *project.Context {
	req := project.Request{SoftwareName: "库存管理系统", Description: "仓库库存", TechStack: "flask_vue", TargetLines: 3000, CompletionDate: "2026-05-01"}
	return project.NewContext(req, techstack.Stack{ID: "flask_vue", Name: "Flask + Vue", Languages: "Python, JavaScript"})
}

func readFile(t *testing.T, d Deps, taskID, rel string) string {
	t.Helper()
	p, err := d.Workspace.Resolve(taskID, rel)
	if err != nil {
		t.Fatalf("Resolve(%s) failed: %v", rel, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

func TestDefaultOrder(t *testing.T) {
	steps := Default(Deps{})
	want := []string{
		"Generate feature list",
		"Generate source code",
		"Generate HTML pages",
		"Capture screenshots",
		"Assemble documents",
		"Package deliverables",
	}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps", len(steps))
	}
	for i, s := range steps {
		if s.Name() != want[i] {
			t.Errorf("step %d = %q, want %q", i+1, s.Name(), want[i])
		}
	}
}

func TestFeatureStepParsesModelOutput(t *testing.T) {
	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "Here you go:\n```json\n[" +
			`{"name":"登录","description":"账号登录","page_type":"LOGIN","operation_steps":["打开页面","输入密码"]},` +
			`{"name":"看板","description":"","page_type":"unknown"},` +
			`{"name":"三"},{"name":"四"},{"name":"五"},{"name":"六"},{"name":"七"}` +
			"]\n```", nil
	}}
	d := newDeps(t, gen)
	pc := newContext()

	out, err := Default(d)[0].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Success {
		t.Fatalf("outcome %+v, err %v", out, err)
	}
	if len(pc.Features) != 6 {
		t.Fatalf("expected 6 features, got %d", len(pc.Features))
	}

	first := pc.Features[0]
	if first.PageType != "login" || first.OperationSteps != "打开页面\n输入密码" || first.ManualSection != "4.2.1" {
		t.Errorf("unexpected first feature: %+v", first)
	}
	second := pc.Features[1]
	if second.PageType != project.PageTypes[1] {
		t.Errorf("unknown page type should fall back by position, got %q", second.PageType)
	}
	if second.Description != "2号功能模块" {
		t.Errorf("empty description should default, got %q", second.Description)
	}
	if pc.FeatureSummary != "登录、看板、三、四、五、六" {
		t.Errorf("FeatureSummary = %q", pc.FeatureSummary)
	}
	if !strings.Contains(gen.prompts[0], "库存管理系统") {
		t.Errorf("prompt should name the software: %s", gen.prompts[0])
	}
}

func TestFeatureStepFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"model error", &fakeGenerator{}},
		{"not json", &fakeGenerator{respond: func(string) (string, error) { return "sorry", nil }}},
		{"empty list", &fakeGenerator{respond: func(string) (string, error) { return "[]", nil }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := newContext()
			out, err := Default(newDeps(t, tt.gen))[0].Run(context.Background(), "t1", pc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Kind != orchestrator.Warning {
				t.Errorf("fallback should warn, got %s", out.Kind)
			}
			if len(pc.Features) != 6 || pc.Features[0].Name != "用户登录" {
				t.Errorf("unexpected defaults: %+v", pc.Features)
			}
			if !strings.Contains(pc.Features[2].Description, "仓库库存") {
				t.Errorf("list feature should mention the description: %q", pc.Features[2].Description)
			}
		})
	}
}

func TestFeatureStepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{respond: func(string) (string, error) { return "", context.Canceled }}

	_, err := Default(newDeps(t, gen))[0].Run(ctx, "t1", newContext())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSourceStepUsesTemplatesAndExpands(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	stackDir := filepath.Join(d.TemplatesDir, "flask_vue")
	if err := os.MkdirAll(filepath.Join(stackDir, "backend"), 0755); err != nil {
		t.Fatal(err)
	}
	tpl := "# {{SOFTWARE_NAME}}\n{{DESCRIPTION}} on {{TECH_STACK_NAME}}\n"
	if err := os.WriteFile(filepath.Join(stackDir, "README.md.tpl"), []byte(tpl), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stackDir, "backend", "app.py"), []byte("print('ok')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pc := newContext()
	pc.Features = defaultFeatures(pc.Description)

	out, err := Default(d)[1].Run(context.Background(), "t1", pc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Kind != orchestrator.Warning {
		t.Errorf("template feature code should warn, got %s", out.Kind)
	}

	if got := pc.GeneratedCode["README.md"]; got != "# 库存管理系统\n仓库库存 on Flask + Vue\n" {
		t.Errorf("template not rendered: %q", got)
	}
	if _, ok := pc.GeneratedCode["backend/app.py"]; !ok {
		t.Error("nested template missing")
	}
	for _, f := range pc.Features {
		if len(f.CodeFiles) != 4 {
			t.Errorf("feature %s has %d files", f.Name, len(f.CodeFiles))
		}
	}
	if pc.TotalLines < int(float64(pc.TargetLines)*expandRatio) {
		t.Errorf("TotalLines %d below expansion target", pc.TotalLines)
	}
	if pc.TotalLines != totalLines(pc.GeneratedCode) {
		t.Errorf("TotalLines %d does not match code", pc.TotalLines)
	}

	if got := readFile(t, d, "t1", "work/code/README.md"); got != pc.GeneratedCode["README.md"] {
		t.Errorf("persisted README = %q", got)
	}
	if _, err := os.Stat(filepath.Join(d.Workspace.Root(), "t1", "work/code/docs/implementation_notes/part_1.md")); err != nil {
		t.Errorf("expansion notes not persisted: %v", err)
	}
}

func TestSourceStepUsesModelFiles(t *testing.T) {
	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		return `{"files":[` +
			`{"path":"./backend/orders.py","content":"def orders():\n    return []\n"},` +
			`{"path":"README.md","content":"dup"},` +
			`{"path":"empty.py","content":""},` +
			`{"path":"a/../../escape.py","content":"x"}` +
			`]}`, nil
	}}
	d := newDeps(t, gen)
	pc := newContext()
	pc.Features = []project.Feature{{Name: "订单", PageType: "list"}}

	out, err := Default(d)[1].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Success {
		t.Fatalf("outcome %+v, err %v", out, err)
	}
	if got := pc.Features[0].CodeFiles; len(got) != 1 || got[0] != "backend/orders.py" {
		t.Errorf("CodeFiles = %v", got)
	}
	if strings.Contains(pc.GeneratedCode["README.md"], "dup") {
		t.Error("model output must not overwrite existing files")
	}
}

func TestSourceStepRerunClearsStaleFiles(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	if _, err := d.Workspace.WriteFile("t1", "work/code/stale.txt", []byte("old")); err != nil {
		t.Fatal(err)
	}
	pc := newContext()
	if _, err := Default(d)[1].Run(context.Background(), "t1", pc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(d.Workspace.Root(), "t1", "work/code/stale.txt")); !os.IsNotExist(err) {
		t.Errorf("stale file should be removed, stat err = %v", err)
	}
}

func TestFeatureFilesPerLanguage(t *testing.T) {
	pc := newContext()
	files := featureFiles(pc, "Order List")
	if _, ok := files["backend/modules/order_list_service.py"]; !ok {
		t.Errorf("python service missing: %v", sortedKeys(files))
	}
	if _, ok := files["frontend/src/views/OrderListView.vue"]; !ok {
		t.Errorf("vue view missing: %v", sortedKeys(files))
	}

	pc.TechStackID = "custom"
	pc.Stack.Languages = "Java, JavaScript"
	files = featureFiles(pc, "Order List")
	if _, ok := files["backend/src/main/java/com/example/modules/order_list/OrderListController.java"]; !ok {
		t.Errorf("java controller missing: %v", sortedKeys(files))
	}
}

func TestExpandToTarget(t *testing.T) {
	code := map[string]string{"a.py": strings.Repeat("x\n", 99)}
	expandToTarget(code, 1000)
	if totalLines(code) < 800 {
		t.Errorf("expanded to %d lines, want at least 800", totalLines(code))
	}
	if _, ok := code["docs/implementation_notes/part_6.md"]; !ok {
		t.Errorf("expected six note files, got %v", sortedKeys(code))
	}

	full := map[string]string{"a.py": strings.Repeat("x\n", 900)}
	expandToTarget(full, 1000)
	if len(full) != 1 {
		t.Error("code above the target should not be expanded")
	}
}

func TestPageStepRendersEscapedPages(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := newContext()
	pc.Features = []project.Feature{
		{Name: "<script>alert(1)</script>", Description: "x", PageType: "list"},
		{Name: "登录", Description: "登录页", PageType: "login"},
	}

	out, err := Default(d)[2].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Success {
		t.Fatalf("outcome %+v, err %v", out, err)
	}
	if pc.Features[0].HTMLPath != "work/html/01_script_alert_1_script.html" {
		t.Errorf("HTMLPath = %q", pc.Features[0].HTMLPath)
	}
	if len(pc.Pages) != 2 {
		t.Errorf("Pages = %v", pc.Pages)
	}

	page := readFile(t, d, "t1", pc.Features[0].HTMLPath)
	if strings.Contains(page, "<script>alert") {
		t.Error("feature name must be escaped")
	}
	if !strings.Contains(page, "<th>编号</th>") {
		t.Error("list page should render the table")
	}

	login := readFile(t, d, "t1", pc.Features[1].HTMLPath)
	if !strings.Contains(login, "请输入名称") || strings.Contains(login, "<table>") {
		t.Error("login page should render fields only")
	}
}

func TestParsePayloadOverridesFallback(t *testing.T) {
	fallback := fallbackPayload("订单", "订单列表")
	p, err := parsePayload(`noise {"title":"订单中心","table_columns":["单号"],"sample_rows":[{"单号":1001}]} noise`, fallback)
	if err != nil {
		t.Fatalf("parsePayload failed: %v", err)
	}
	if p.Title != "订单中心" || p.Subtitle != "订单列表" || len(p.Menus) != 3 {
		t.Errorf("unexpected payload: %+v", p)
	}

	html, err := renderPage("App", "list", p)
	if err != nil {
		t.Fatalf("renderPage failed: %v", err)
	}
	if !strings.Contains(string(html), "<td>1001</td>") {
		t.Errorf("numeric cell not rendered:\n%s", html)
	}

	if _, err := parsePayload(`{"fields":"oops"}`, fallback); err == nil {
		t.Error("expected error for mistyped fields")
	}
}

func TestCaptureStepPlaceholders(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := newContext()
	pc.Features = []project.Feature{
		{Name: "Login Page", PageType: "login", HTMLPath: "work/html/01_login.html"},
		{Name: "No Page", PageType: "list"},
	}

	out, err := Default(d)[3].Run(context.Background(), "t1", pc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Kind != orchestrator.Warning {
		t.Errorf("placeholders should warn, got %s", out.Kind)
	}
	if got := pc.Features[0].ScreenshotPath; got != "screenshots/placeholder_Login_Page.png" {
		t.Errorf("ScreenshotPath = %q", got)
	}
	if pc.Features[1].ScreenshotPath != "" {
		t.Error("feature without a page should have no screenshot")
	}

	data := readFile(t, d, "t1", pc.Features[0].ScreenshotPath)
	img, err := png.Decode(bytes.NewReader([]byte(data)))
	if err != nil {
		t.Fatalf("placeholder is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != viewportWidth || b.Dy() != viewportHeight {
		t.Errorf("placeholder size %v", b)
	}
}

func TestCaptureStepUsesCapturer(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	d.Capturer = fakeCapturer{}
	pc := newContext()
	pc.Features = []project.Feature{{Name: "Login", PageType: "login", HTMLPath: "work/html/01_login.html"}}

	out, err := Default(d)[3].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Success {
		t.Fatalf("outcome %+v, err %v", out, err)
	}
	if pc.Screenshots["Login"] != "screenshots/Login.png" {
		t.Errorf("Screenshots = %v", pc.Screenshots)
	}

	d.Capturer = fakeCapturer{fail: true}
	out, err = Default(d)[3].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Warning {
		t.Fatalf("failed capture should degrade: %+v, %v", out, err)
	}
}

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		name         string
		features     []project.Feature
		totalLines   int
		wantWarnings int
		wantOK       bool
	}{
		{
			name:       "clean",
			features:   []project.Feature{{Name: "a", PageType: "list", CodeFiles: []string{"a.py"}, ScreenshotPath: "screenshots/a.png"}},
			totalLines: 2000, wantOK: true,
		},
		{
			name:       "missing code and screenshot",
			features:   []project.Feature{{Name: "a", PageType: "list"}},
			totalLines: 2000, wantWarnings: 2, wantOK: true,
		},
		{
			name:       "placeholder",
			features:   []project.Feature{{Name: "a", PageType: "list", CodeFiles: []string{"a.py"}, ScreenshotPath: "screenshots/placeholder_a.png"}},
			totalLines: 2000, wantWarnings: 1, wantOK: true,
		},
		{
			name:       "too short",
			features:   []project.Feature{{Name: "a", CodeFiles: []string{"a.py"}}},
			totalLines: 1799, wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := &project.Context{Features: tt.features, TargetLines: 3000, TotalLines: tt.totalLines}
			r := CheckConsistency(pc)
			if len(r.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v", r.Warnings)
			}
			if r.OK() != tt.wantOK {
				t.Errorf("OK = %v, errors = %v", r.OK(), r.Errors)
			}
		})
	}
}

func TestDocumentStepFatalBelowMinimum(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := newContext()
	pc.TotalLines = 10

	out, err := Default(d)[4].Run(context.Background(), "t1", pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != orchestrator.Fatal || !strings.Contains(out.Message, "below the minimum") {
		t.Errorf("outcome = %+v", out)
	}
	if len(pc.OutputFiles) != 0 {
		t.Error("no documents should be written")
	}
}

// docxPart returns the named part of the .docx at rel and the names of all parts.
func docxPart(t *testing.T, d Deps, taskID, rel, part string) (string, []string) {
	t.Helper()
	p, err := d.Workspace.Resolve(taskID, rel)
	if err != nil {
		t.Fatalf("Resolve(%s) failed: %v", rel, err)
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		t.Fatalf("%s is not a docx archive: %v", rel, err)
	}
	defer zr.Close()

	var names []string
	content := ""
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name != part {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", part, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read %s: %v", part, err)
		}
		content = buf.String()
	}
	return content, names
}

func documentContext(t *testing.T, d Deps) *project.Context {
	t.Helper()
	pc := newContext()
	pc.Stack.Runtime = "Python 3.11"
	pc.Features = []project.Feature{
		{Name: "登录", Description: "账号登录", PageType: "login", CodeFiles: []string{"a.py"}, ScreenshotPath: "screenshots/login.png"},
		{Name: "列表", Description: "数据列表", PageType: "list", CodeFiles: []string{"a.py"}},
	}
	pc.FeatureSummary = "登录、列表"
	pc.GeneratedCode = map[string]string{"a.py": strings.Repeat("print(1)\n", 2500)}
	pc.TotalLines = totalLines(pc.GeneratedCode)

	img, err := placeholderImage()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Workspace.WriteFile("t1", "screenshots/login.png", img); err != nil {
		t.Fatal(err)
	}
	return pc
}

func TestDocumentStepWritesDocuments(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := documentContext(t, d)

	out, err := Default(d)[4].Run(context.Background(), "t1", pc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Kind != orchestrator.Warning || !strings.Contains(out.Message, `"列表" has no screenshot`) {
		t.Errorf("outcome = %+v", out)
	}
	if strings.Contains(out.Message, "plain text") {
		t.Errorf("no document should fall back to text: %s", out.Message)
	}

	want := map[string]string{
		DocSource:      "docs/库存管理系统_源程序.docx",
		DocManual:      "docs/库存管理系统_操作手册.docx",
		DocApplication: "docs/库存管理系统_申请表.docx",
	}
	for k, v := range want {
		if pc.OutputFiles[k] != v {
			t.Errorf("OutputFiles[%s] = %q, want %q", k, pc.OutputFiles[k], v)
		}
	}

	listing, _ := docxPart(t, d, "t1", want[DocSource], "word/document.xml")
	for _, s := range []string{"a.py", "0001  print(1)", "2500  print(1)"} {
		if !strings.Contains(listing, s) {
			t.Errorf("listing missing %q", s)
		}
	}

	manual, _ := docxPart(t, d, "t1", want[DocManual], "word/document.xml")
	for _, s := range []string{"软件环境：Python 3.11", "图1 登录界面", "截图缺失"} {
		if !strings.Contains(manual, s) {
			t.Errorf("manual missing %q", s)
		}
	}

	form, _ := docxPart(t, d, "t1", want[DocApplication], "word/document.xml")
	for _, s := range []string{"软件简称：库存管理系统", "源程序量：2501", "主要功能：登录、列表", "- 权利范围"} {
		if !strings.Contains(form, s) {
			t.Errorf("application form missing %q", s)
		}
	}
}

func TestManualEmbedsScreenshots(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := documentContext(t, d)

	if _, err := Default(d)[4].Run(context.Background(), "t1", pc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want, err := placeholderImage()
	if err != nil {
		t.Fatal(err)
	}
	_, names := docxPart(t, d, "t1", pc.OutputFiles[DocManual], "")
	var media []string
	for _, n := range names {
		if strings.HasPrefix(n, "word/media/") {
			media = append(media, n)
		}
	}
	// Only the login feature has a screenshot.
	if len(media) != 1 || !strings.HasSuffix(media[0], ".png") {
		t.Fatalf("manual media = %v, want one png", media)
	}
	embedded, _ := docxPart(t, d, "t1", pc.OutputFiles[DocManual], media[0])
	if embedded != string(want) {
		t.Error("embedded image differs from the captured screenshot")
	}
	if _, err := png.Decode(strings.NewReader(embedded)); err != nil {
		t.Errorf("embedded image is not a png: %v", err)
	}

	xml, _ := docxPart(t, d, "t1", pc.OutputFiles[DocManual], "word/document.xml")
	if !strings.Contains(xml, "<w:drawing") {
		t.Error("manual body has no drawing")
	}

	_, names = docxPart(t, d, "t1", pc.OutputFiles[DocApplication], "")
	for _, n := range names {
		if strings.HasPrefix(n, "word/media/") {
			t.Errorf("application form should carry no images, found %s", n)
		}
	}
}

func TestDocumentStepFallsBackToText(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	pc := documentContext(t, d)

	// A directory in the way makes the docx writer fail for the manual only.
	blocked, err := d.Workspace.Resolve("t1", "docs/库存管理系统_操作手册.docx/x")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(blocked, 0755); err != nil {
		t.Fatal(err)
	}

	out, err := Default(d)[4].Run(context.Background(), "t1", pc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Kind != orchestrator.Warning || !strings.Contains(out.Message, "库存管理系统_操作手册 written as plain text") {
		t.Errorf("outcome = %+v", out)
	}
	if pc.OutputFiles[DocManual] != "docs/库存管理系统_操作手册.txt" {
		t.Errorf("manual = %q, want text fallback", pc.OutputFiles[DocManual])
	}
	if pc.OutputFiles[DocSource] != "docs/库存管理系统_源程序.docx" {
		t.Errorf("source = %q, want docx", pc.OutputFiles[DocSource])
	}

	manual := readFile(t, d, "t1", pc.OutputFiles[DocManual])
	for _, s := range []string{"软件环境：Python 3.11", "图1 登录界面：screenshots/login.png", "截图缺失"} {
		if !strings.Contains(manual, s) {
			t.Errorf("manual missing %q", s)
		}
	}
}

func TestSourceListingKeepsHeadAndTail(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 4000; i++ {
		b.WriteString("line")
		b.WriteString(strings.Repeat("x", i%3))
		b.WriteString("\n")
	}
	pc := &project.Context{SoftwareName: "App", GeneratedCode: map[string]string{"a.txt": b.String(), "b.txt": "last\n"}}

	listing := sourceListing(pc).Text()
	numbered := 0
	for _, l := range strings.Split(listing, "\n") {
		if len(l) > 4 && l[4] == ' ' && l[0] >= '0' && l[0] <= '9' {
			numbered++
		}
	}
	if numbered != maxListingLines {
		t.Errorf("listing has %d lines, want %d", numbered, maxListingLines)
	}
	if !strings.Contains(listing, "## b.txt\n0001  last\n") {
		t.Error("tail file missing from listing")
	}
}

func TestPackageStep(t *testing.T) {
	d := newDeps(t, &fakeGenerator{})
	completer := d.Completer.(*fakeCompleter)
	pc := newContext()

	out, err := Default(d)[5].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Fatal {
		t.Fatalf("no outputs should be fatal: %+v, %v", out, err)
	}
	if len(completer.calls) != 0 {
		t.Fatal("task must not complete without outputs")
	}

	for _, rel := range []string{"docs/a_源程序.txt", "docs/a_操作手册.txt"} {
		if _, err := d.Workspace.WriteFile("t1", rel, []byte(rel)); err != nil {
			t.Fatal(err)
		}
	}
	pc.SoftwareName = "a"
	pc.OutputFiles = map[string]string{DocSource: "docs/a_源程序.txt", DocManual: "docs/a_操作手册.txt"}

	out, err = Default(d)[5].Run(context.Background(), "t1", pc)
	if err != nil || out.Kind != orchestrator.Success {
		t.Fatalf("outcome %+v, err %v", out, err)
	}
	if len(completer.calls) != 1 {
		t.Fatalf("CompleteTask called %d times", len(completer.calls))
	}
	files := completer.calls[0]
	if files[DocBundle] != "docs/a_软著材料.zip" || files[DocSource] == "" {
		t.Errorf("completed files = %v", files)
	}

	p, _ := d.Workspace.Resolve("t1", files[DocBundle])
	zr, err := zip.OpenReader(p)
	if err != nil {
		t.Fatalf("bundle unreadable: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "a_操作手册.txt,a_源程序.txt" {
		t.Errorf("bundle entries = %v", names)
	}
}

func TestNames(t *testing.T) {
	if got := slug("Order List!"); got != "order_list" {
		t.Errorf("slug = %q", got)
	}
	if got := slug("!!!"); got != "feature" {
		t.Errorf("slug of punctuation = %q", got)
	}
	if got := camel("order_list"); got != "OrderList" {
		t.Errorf("camel = %q", got)
	}
	if got := documentName(`a/b:c`); got != "a_b_c" {
		t.Errorf("documentName = %q", got)
	}
	if got := documentName("  "); got != "软著材料" {
		t.Errorf("documentName of blank = %q", got)
	}
}
