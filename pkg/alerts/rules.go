package alerts

import (
	"fmt"
	"sort"
	"sync"
	"text/template"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Coarse category labels attached to generated alerts.
const (
	LabelSchedule  = "schedule"
	LabelFinancial = "financial"
	LabelLegal     = "legal"
	LabelTechnical = "technical"
	LabelQuality   = "quality"
	LabelScope     = "scope"
)

// Affected-entity keys.
const (
	EntityScheduleItems = "schedule_items"
	EntityMaterials     = "materials"
)

// EntityExtractor pulls referenced entity identifiers out of one alert's
// evidence. Malformed identifiers must be skipped.
type EntityExtractor func(evidence map[string]any) map[string][]string

// Rule describes how one rule identifier becomes user-facing alerts.
type Rule struct {
	ID              string
	Title           string
	Template        string
	DefaultSeverity contracts.Severity
	Label           string
	ScoreCategory   contracts.Category
	// ListField names the evidence key holding per-item findings. Each entry
	// becomes its own alert.
	ListField string
	Entities  EntityExtractor
}

type compiledRule struct {
	Rule
	tmpl *template.Template
	err  error
}

// Rules is a concurrency-safe registry of rule descriptors.
type Rules struct {
	mu    sync.RWMutex
	rules map[string]*compiledRule
}

// NewRules creates an empty registry.
func NewRules() *Rules {
	return &Rules{rules: make(map[string]*compiledRule)}
}

// DefaultRules returns a registry preloaded with the built-in rules.
func DefaultRules() *Rules {
	r := NewRules()
	for _, rule := range builtinRules() {
		r.Register(rule)
	}
	return r
}

// Register adds or replaces a rule. A template that fails to parse is kept
// and rendered as its raw text.
func (r *Rules) Register(rule Rule) {
	c := &compiledRule{Rule: rule}
	if rule.Template != "" {
		c.tmpl, c.err = template.New(rule.ID).Option("missingkey=error").Parse(rule.Template)
		if c.err != nil {
			c.err = fmt.Errorf("parse template for %s: %w", rule.ID, c.err)
		}
	}
	r.mu.Lock()
	r.rules[rule.ID] = c
	r.mu.Unlock()
}

// Lookup returns the rule registered under id.
func (r *Rules) Lookup(id string) (Rule, bool) {
	c, ok := r.get(id)
	if !ok {
		return Rule{}, false
	}
	return c.Rule, true
}

// IDs returns the registered rule identifiers, sorted.
func (r *Rules) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Rules) get(id string) (*compiledRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rules[id]
	return c, ok
}

func builtinRules() []Rule {
	return []Rule{
		{
			ID:              "schedule_dependency_violation",
			Title:           "Schedule dependency violation",
			Template:        "Task {{.task_name}} starts before its predecessor {{.predecessor_name}} finishes",
			DefaultSeverity: contracts.SeverityHigh,
			Label:           LabelSchedule,
			ScoreCategory:   contracts.CategoryTime,
			ListField:       "violations",
			Entities:        scheduleItems("task_id", "predecessor_id", "successor_id"),
		},
		{
			ID:              "milestone_date_conflict",
			Title:           "Milestone date conflict",
			Template:        "Milestone {{.milestone}} is dated {{.schedule_date}} in the schedule but {{.contract_date}} in the contract",
			DefaultSeverity: contracts.SeverityMedium,
			Label:           LabelSchedule,
			ScoreCategory:   contracts.CategoryTime,
			Entities:        scheduleItems("milestone_id"),
		},
		{
			ID:              "orphan_task",
			Title:           "Orphan schedule task",
			Template:        "Task {{.task_name}} is not linked to any contract scope item",
			DefaultSeverity: contracts.SeverityLow,
			Label:           LabelSchedule,
			ScoreCategory:   contracts.CategoryScope,
			ListField:       "orphan_tasks",
			Entities:        scheduleItems("task_id"),
		},
		{
			ID:              "unbudgeted_work",
			Title:           "Unbudgeted work",
			Template:        "Work item {{.item_name}} has no matching budget line",
			DefaultSeverity: contracts.SeverityHigh,
			Label:           LabelFinancial,
			ScoreCategory:   contracts.CategoryBudget,
			ListField:       "unbudgeted_items",
			Entities:        scheduleItems("item_id", "task_id"),
		},
		{
			ID:              "budget_overrun",
			Title:           "Budget overrun",
			Template:        "Budgeted cost {{.budgeted}} exceeds contract value {{.contract_value}}",
			DefaultSeverity: contracts.SeverityHigh,
			Label:           LabelFinancial,
			ScoreCategory:   contracts.CategoryBudget,
		},
		{
			ID:              "penalty_clause_risk",
			Title:           "Penalty clause risk",
			Template:        "Penalty clause exposes the project to {{.penalty_amount}} in liquidated damages",
			DefaultSeverity: contracts.SeverityCritical,
			Label:           LabelLegal,
			ScoreCategory:   contracts.CategoryLegal,
		},
		{
			ID:              "missing_insurance_clause",
			Title:           "Missing insurance clause",
			Template:        "Contract does not state the required {{.coverage_type}} insurance coverage",
			DefaultSeverity: contracts.SeverityMedium,
			Label:           LabelLegal,
			ScoreCategory:   contracts.CategoryLegal,
		},
		{
			ID:              "material_spec_mismatch",
			Title:           "Material specification mismatch",
			Template:        "Material {{.material_name}} does not meet specification {{.spec_reference}}",
			DefaultSeverity: contracts.SeverityMedium,
			Label:           LabelTechnical,
			ScoreCategory:   contracts.CategoryTechnical,
			Entities:        materials("material_id", "material_ids"),
		},
		{
			ID:              "quality_standard_missing",
			Title:           "Quality standard missing",
			Template:        "No quality standard is referenced for {{.work_package}}",
			DefaultSeverity: contracts.SeverityLow,
			Label:           LabelQuality,
			ScoreCategory:   contracts.CategoryQuality,
		},
		{
			ID:              "scope_gap",
			Title:           "Scope gap",
			Template:        "Scope item {{.scope_item}} has no corresponding schedule activity",
			DefaultSeverity: contracts.SeverityMedium,
			Label:           LabelScope,
			ScoreCategory:   contracts.CategoryScope,
			Entities:        scheduleItems("task_id"),
		},
	}
}
