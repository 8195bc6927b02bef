package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

const (
	clauseA = "3f2b7c1e-8d4a-4b6e-9f10-2a3b4c5d6e7f"
	clauseB = "a1b2c3d4-e5f6-4789-8abc-def012345678"
	taskA   = "11111111-2222-4333-8444-555555555555"
	taskB   = "66666666-7777-4888-9999-aaaaaaaaaaaa"
)

func TestGenerate_NotViolated(t *testing.T) {
	g := NewGenerator()
	assert.Empty(t, g.Generate(contracts.RuleResult{RuleID: "budget_overrun", Violated: false}))
}

func TestGenerate_SingleAlert(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "budget_overrun",
		Violated: true,
		Evidence: map[string]any{
			"budgeted":           "1.2M",
			"contract_value":     "1.0M",
			"source_clause_id":   clauseA,
			"related_clause_ids": []any{clauseB, "not-a-uuid", clauseB},
		},
	})
	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "budget_overrun", a.RuleID)
	assert.Equal(t, LabelFinancial, a.Category)
	assert.Equal(t, contracts.CategoryBudget, a.ScoreCategory)
	assert.Equal(t, contracts.SeverityHigh, a.Severity)
	assert.Equal(t, "Budget overrun", a.Title)
	assert.Equal(t, "Budgeted cost 1.2M exceeds contract value 1.0M", a.Description)
	assert.Equal(t, clauseA, a.SourceClauseID)
	assert.Equal(t, []string{clauseB}, a.RelatedClauseIDs)
}

func TestGenerate_ExpandsListEvidence(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "schedule_dependency_violation",
		Violated: true,
		Category: contracts.CategoryTime,
		Evidence: map[string]any{
			"source_clause_id": clauseA,
			"violations": []any{
				map[string]any{"task_name": "Pour slab", "predecessor_name": "Rebar", "task_id": taskA},
				map[string]any{"task_name": "Roofing", "predecessor_name": "Framing", "task_id": taskB, "severity": "critical"},
			},
		},
	})
	require.Len(t, out, 2)

	assert.Equal(t, "Task Pour slab starts before its predecessor Rebar finishes", out[0].Description)
	assert.Equal(t, contracts.SeverityHigh, out[0].Severity)
	assert.Equal(t, map[string][]string{EntityScheduleItems: {taskA}}, out[0].AffectedEntities)
	assert.Equal(t, clauseA, out[0].SourceClauseID, "shared evidence is merged into each item")
	assert.NotContains(t, out[0].Evidence, "violations")

	assert.Equal(t, contracts.SeverityCritical, out[1].Severity)
	assert.Equal(t, map[string][]string{EntityScheduleItems: {taskB}}, out[1].AffectedEntities)
	assert.Equal(t, LabelSchedule, out[1].Category)
}

func TestGenerate_EmptyListFallsBackToOneAlert(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "orphan_task",
		Violated: true,
		Evidence: map[string]any{"orphan_tasks": []any{}},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Task {{.task_name}} is not linked to any contract scope item", out[0].Description)
}

func TestGenerate_MissingFieldUsesRawTemplate(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "penalty_clause_risk",
		Violated: true,
		Evidence: map[string]any{},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Penalty clause exposes the project to {{.penalty_amount}} in liquidated damages", out[0].Description)
	assert.Equal(t, contracts.SeverityCritical, out[0].Severity)
}

func TestGenerate_UnknownRule(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "custom_thing_check",
		Violated: true,
		Evidence: map[string]any{"severity": "urgent"},
	})
	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "rule custom_thing_check detected an inconsistency", a.Description)
	assert.Equal(t, "Custom Thing Check", a.Title)
	assert.Equal(t, contracts.SeverityLow, a.Severity, "invalid evidence severity falls through to LOW")
	assert.Empty(t, a.Category)
	assert.Nil(t, a.AffectedEntities)
}

func TestGenerate_MaterialEntities(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{
		RuleID:   "material_spec_mismatch",
		Violated: true,
		Evidence: map[string]any{
			"material_name":  "C30 concrete",
			"spec_reference": "EN 206",
			"material_id":    taskA,
			"material_ids":   []string{taskB, "??", taskA},
		},
	})
	require.Len(t, out, 1)
	assert.Equal(t, map[string][]string{EntityMaterials: {taskA, taskB}}, out[0].AffectedEntities)
	assert.Equal(t, "Material C30 concrete does not meet specification EN 206", out[0].Description)
}

func TestGenerate_DoesNotMutateInput(t *testing.T) {
	evidence := map[string]any{
		"unbudgeted_items": []any{map[string]any{"item_name": "Fence"}},
	}
	g := NewGenerator()
	out := g.Generate(contracts.RuleResult{RuleID: "unbudgeted_work", Violated: true, Evidence: evidence})
	require.Len(t, out, 1)
	out[0].Evidence["item_name"] = "changed"
	assert.Contains(t, evidence, "unbudgeted_items")
	assert.Equal(t, "Fence", evidence["unbudgeted_items"].([]any)[0].(map[string]any)["item_name"])
}

func TestGenerateAll_SetsAnalysisID(t *testing.T) {
	g := NewGenerator()
	out := g.GenerateAll([]contracts.RuleResult{
		{RuleID: "scope_gap", Violated: true, Evidence: map[string]any{"scope_item": "Landscaping"}},
		{RuleID: "scope_gap", Violated: false},
		{RuleID: "quality_standard_missing", Violated: true, Evidence: map[string]any{"work_package": "WP-4"}},
	}, "analysis-1")
	require.Len(t, out, 2)
	for _, a := range out {
		assert.Equal(t, "analysis-1", a.AnalysisID)
	}
	assert.Equal(t, "Scope item Landscaping has no corresponding schedule activity", out[0].Description)
}

func TestRules_RegisterCustom(t *testing.T) {
	rules := NewRules()
	rules.Register(Rule{ID: "broken", Template: "{{.unterminated"})
	rules.Register(Rule{ID: "custom", Template: "Hello {{.name}}", DefaultSeverity: contracts.SeverityMedium, Label: LabelQuality})
	g := NewGenerator(WithRules(rules))

	out := g.Generate(contracts.RuleResult{RuleID: "broken", Violated: true})
	require.Len(t, out, 1)
	assert.Equal(t, "{{.unterminated", out[0].Description)

	out = g.Generate(contracts.RuleResult{RuleID: "custom", Violated: true, Evidence: map[string]any{"name": "world"}})
	require.Len(t, out, 1)
	assert.Equal(t, "Hello world", out[0].Description)
	assert.Equal(t, contracts.SeverityMedium, out[0].Severity)

	assert.Equal(t, []string{"broken", "custom"}, rules.IDs())
	_, ok := rules.Lookup("missing")
	assert.False(t, ok)
}
