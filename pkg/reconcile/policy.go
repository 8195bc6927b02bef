package reconcile

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// ReviewPolicy decides whether an alert needs a human reviewer.
type ReviewPolicy interface {
	RequiresReview(a contracts.AlertCreate) bool
}

// ReviewFunc adapts a function to ReviewPolicy.
type ReviewFunc func(a contracts.AlertCreate) bool

func (f ReviewFunc) RequiresReview(a contracts.AlertCreate) bool { return f(a) }

// DefaultReviewPolicy flags HIGH and CRITICAL alerts and any penalty rule.
var DefaultReviewPolicy ReviewPolicy = ReviewFunc(func(a contracts.AlertCreate) bool {
	switch a.Severity.Normalize() {
	case contracts.SeverityCritical, contracts.SeverityHigh:
		return true
	}
	// "penal" also covers "penalty".
	return strings.Contains(strings.ToLower(a.RuleID), "penal")
})

// CELReviewPolicy evaluates a boolean CEL expression per alert. The
// expression sees rule_id, severity, category, score_category and
// evidence. Evaluation errors fall back to the wrapped policy.
type CELReviewPolicy struct {
	expr     string
	program  cel.Program
	fallback ReviewPolicy
}

// NewCELReviewPolicy compiles expr. A nil fallback means DefaultReviewPolicy.
func NewCELReviewPolicy(expr string, fallback ReviewPolicy) (*CELReviewPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("rule_id", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("score_category", cel.StringType),
		cel.Variable("evidence", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile review policy: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("review policy must return bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	if fallback == nil {
		fallback = DefaultReviewPolicy
	}
	return &CELReviewPolicy{expr: expr, program: prg, fallback: fallback}, nil
}

// Expression returns the source expression.
func (p *CELReviewPolicy) Expression() string { return p.expr }

func (p *CELReviewPolicy) RequiresReview(a contracts.AlertCreate) bool {
	evidence := a.Evidence
	if evidence == nil {
		evidence = map[string]any{}
	}
	out, _, err := p.program.Eval(map[string]any{
		"rule_id":        a.RuleID,
		"severity":       string(a.Severity),
		"category":       a.Category,
		"score_category": string(a.ScoreCategory),
		"evidence":       evidence,
	})
	if err != nil {
		return p.fallback.RequiresReview(a)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return p.fallback.RequiresReview(a)
	}
	return b
}
