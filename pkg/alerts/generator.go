// Package alerts turns rule evaluation results into user-facing alert
// payloads.
//
// Each rule identifier is described by a Rule in a Rules registry: its
// message template, default severity, coarse category label, the evidence
// key carrying per-item findings and an entity extractor. Adding a rule means
// registering a descriptor; the generator itself never switches on rule ids.
package alerts

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Evidence keys read by the generator.
const (
	FieldSeverity         = "severity"
	FieldSourceClauseID   = "source_clause_id"
	FieldRelatedClauseIDs = "related_clause_ids"
)

// Generator renders alerts from rule results. It is safe for concurrent use.
type Generator struct {
	rules  *Rules
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRules replaces the built-in rule registry.
func WithRules(r *Rules) Option {
	return func(g *Generator) { g.rules = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator backed by DefaultRules.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rules:  DefaultRules(),
		logger: slog.Default().With("component", "alerts"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Rules returns the registry used by the generator.
func (g *Generator) Rules() *Rules { return g.rules }

// Generate converts one rule result into zero or more alerts. A result that
// is not violated yields nil.
func (g *Generator) Generate(rr contracts.RuleResult) []contracts.AlertCreate {
	if !rr.Violated {
		return nil
	}
	rule, _ := g.rules.get(rr.RuleID)

	items := g.expand(rule, rr.Evidence)
	out := make([]contracts.AlertCreate, 0, len(items))
	for _, ev := range items {
		out = append(out, g.build(rr, rule, ev))
	}
	return out
}

// GenerateAll runs Generate over every result and concatenates the output.
func (g *Generator) GenerateAll(results []contracts.RuleResult, analysisID string) []contracts.AlertCreate {
	var out []contracts.AlertCreate
	for _, rr := range results {
		for _, a := range g.Generate(rr) {
			a.AnalysisID = analysisID
			out = append(out, a)
		}
	}
	return out
}

// expand splits list-valued evidence into one evidence map per entry, with
// the entry's fields laid over the shared fields.
func (g *Generator) expand(rule *compiledRule, evidence map[string]any) []map[string]any {
	shared := contracts.CloneMap(evidence)
	if shared == nil {
		shared = make(map[string]any)
	}
	if rule == nil || rule.ListField == "" {
		return []map[string]any{shared}
	}

	entries := listEntries(shared[rule.ListField])
	if len(entries) == 0 {
		return []map[string]any{shared}
	}
	delete(shared, rule.ListField)

	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		merged := contracts.CloneMap(shared)
		for k, v := range entry {
			merged[k] = v
		}
		out = append(out, merged)
	}
	return out
}

func listEntries(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		out := make([]map[string]any, 0, len(t))
		for _, m := range t {
			out = append(out, contracts.CloneMap(m))
		}
		return out
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, contracts.CloneMap(m))
			} else if item != nil {
				out = append(out, map[string]any{"value": item})
			}
		}
		return out
	default:
		return nil
	}
}

func (g *Generator) build(rr contracts.RuleResult, rule *compiledRule, evidence map[string]any) contracts.AlertCreate {
	a := contracts.AlertCreate{
		RuleID:        rr.RuleID,
		ScoreCategory: rr.Category,
		Severity:      resolveSeverity(rule, evidence),
		Title:         title(rr.RuleID, rule),
		Description:   g.render(rr.RuleID, rule, evidence),
		Evidence:      evidence,
	}
	if rule != nil {
		a.Category = rule.Label
		if !a.ScoreCategory.Valid() {
			a.ScoreCategory = rule.ScoreCategory
		}
		if rule.Entities != nil {
			a.AffectedEntities = rule.Entities(evidence)
		}
	}
	if id, ok := evidence[FieldSourceClauseID].(string); ok {
		a.SourceClauseID, _ = canonicalUUID(id)
	}
	a.RelatedClauseIDs = uniqueStrings(uuidValues(evidence[FieldRelatedClauseIDs]))
	return a
}

// render never fails: a broken or incomplete template falls back to its raw
// text, and an unknown rule to a generic message.
func (g *Generator) render(ruleID string, rule *compiledRule, evidence map[string]any) string {
	if rule == nil || rule.Template == "" {
		return fmt.Sprintf("rule %s detected an inconsistency", ruleID)
	}
	if rule.err != nil {
		g.logger.Debug("template unusable, using raw text", "rule_id", ruleID, "error", rule.err)
		return rule.Template
	}
	var buf bytes.Buffer
	if err := rule.tmpl.Execute(&buf, evidence); err != nil {
		g.logger.Debug("template render failed, using raw text", "rule_id", ruleID, "error", err)
		return rule.Template
	}
	return buf.String()
}

func resolveSeverity(rule *compiledRule, evidence map[string]any) contracts.Severity {
	if s, ok := evidence[FieldSeverity].(string); ok {
		if sev, ok := contracts.ParseSeverity(s); ok {
			return sev
		}
	}
	if sev, ok := evidence[FieldSeverity].(contracts.Severity); ok {
		if sev = sev.Normalize(); sev.Valid() {
			return sev
		}
	}
	if rule != nil && rule.DefaultSeverity.Valid() {
		return rule.DefaultSeverity
	}
	return contracts.SeverityLow
}

func title(ruleID string, rule *compiledRule) string {
	if rule != nil && rule.Title != "" {
		return rule.Title
	}
	return cases.Title(language.English).String(strings.ReplaceAll(ruleID, "_", " "))
}
