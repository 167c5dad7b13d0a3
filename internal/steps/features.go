package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
)

const featureCount = 6

// FeatureStep derives the feature list of the described software.
type FeatureStep struct {
	deps Deps
}

func (s *FeatureStep) Name() string { return "Generate feature list" }

func (s *FeatureStep) Run(ctx context.Context, taskID string, pc *project.Context) (orchestrator.Outcome, error) {
	features, err := s.generate(ctx, pc)
	if ctx.Err() != nil {
		return orchestrator.Outcome{}, ctx.Err()
	}

	degraded := err != nil
	if degraded {
		log.Printf("WARNING: [%s] feature generation failed, using default features: %v", taskID, err)
		features = defaultFeatures(pc.Description)
	}

	pc.Features = features
	pc.FeatureSummary = strings.Join(pc.FeatureNames(), "、")

	if degraded {
		return orchestrator.Warned(fmt.Sprintf("feature generation failed, using %d default features: %v", len(features), err)), nil
	}
	return orchestrator.Succeeded(fmt.Sprintf("feature list generated, %d features", len(features))), nil
}

func (s *FeatureStep) generate(ctx context.Context, pc *project.Context) ([]project.Feature, error) {
	raw, err := s.deps.Generator.Generate(ctx, featurePrompt(pc.SoftwareName, pc.Description), s.deps.MaxRetries)
	if err != nil {
		return nil, err
	}
	return parseFeatures(raw)
}

func featurePrompt(name, description string) string {
	return "你是资深产品经理。请为一个Web管理系统生成功能清单。\n" +
		"要求：输出严格JSON数组，不要markdown，不要解释。\n" +
		"每个元素字段：name, description, page_type, operation_steps。\n" +
		"page_type必须是: " + strings.Join(project.PageTypes, "/") + " 之一。\n" +
		"共输出6个功能，至少包含登录、首页概览、数据列表、数据录入、详情、统计分析。\n" +
		"软件名称: " + name + "\n" +
		"项目描述: " + description + "\n"
}

// parseFeatures reads up to six features from model output. Unknown page
// types fall back to the type at the same position in project.PageTypes.
func parseFeatures(raw string) ([]project.Feature, error) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw, arrayPattern)), &items); err != nil {
		return nil, fmt.Errorf("failed to parse feature list: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("feature list is empty")
	}
	if len(items) > featureCount {
		items = items[:featureCount]
	}

	features := make([]project.Feature, 0, len(items))
	for i, item := range items {
		n := i + 1
		pageType := strings.ToLower(stringField(item, "page_type", "list"))
		if !slices.Contains(project.PageTypes, pageType) {
			pageType = project.PageTypes[min(i, len(project.PageTypes)-1)]
		}

		description := truncateRunes(stringField(item, "description", ""), 120)
		if description == "" {
			description = fmt.Sprintf("%d号功能模块", n)
		}

		features = append(features, project.Feature{
			Name:           truncateRunes(stringField(item, "name", fmt.Sprintf("功能%d", n)), 30),
			Description:    description,
			PageType:       pageType,
			ManualSection:  fmt.Sprintf("4.2.%d", n),
			OperationSteps: truncateRunes(stringField(item, "operation_steps", ""), 300),
		})
	}
	return features, nil
}

// stringField reads a loosely typed JSON field. Lists are joined line by line.
func stringField(item map[string]any, key, def string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, strings.TrimSpace(fmt.Sprint(p)))
		}
		return strings.Join(parts, "\n")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func defaultFeatures(description string) []project.Feature {
	return []project.Feature{
		{Name: "用户登录", Description: "用户账号密码登录并进行权限校验", PageType: "login", ManualSection: "4.2.1", OperationSteps: "输入账号密码并点击登录，系统校验通过后进入首页。"},
		{Name: "系统首页", Description: "展示关键业务指标、待办信息与统计概览", PageType: "dashboard", ManualSection: "4.2.2", OperationSteps: "登录后进入首页，查看统计卡片和最近业务动态。"},
		{Name: "数据管理", Description: fmt.Sprintf("针对%s的核心业务数据列表与检索", description), PageType: "list", ManualSection: "4.2.3", OperationSteps: "通过筛选条件查询数据，支持分页浏览和批量操作。"},
		{Name: "数据录入", Description: "新增和编辑业务数据，支持字段校验", PageType: "form", ManualSection: "4.2.4", OperationSteps: "进入新增页面填写表单，提交后系统保存并返回列表。"},
		{Name: "详情查看", Description: "查看单条业务数据的完整信息与状态", PageType: "detail", ManualSection: "4.2.5", OperationSteps: "在列表中点击详情，查看完整信息及变更记录。"},
		{Name: "统计分析", Description: "按时间和维度生成统计图表辅助决策", PageType: "chart", ManualSection: "4.2.6", OperationSteps: "选择统计维度和时间范围，系统生成图表和汇总数据。"},
	}
}
