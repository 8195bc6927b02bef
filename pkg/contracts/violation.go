package contracts

// Violation is a detected rule violation supplied by the external rule
// evaluation step. It is consumed, never mutated.
type Violation struct {
	RuleID   string         `json:"rule_id"`
	Severity Severity       `json:"severity"`
	Category Category       `json:"category"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// RuleResult is the outcome of evaluating one coherence rule.
type RuleResult struct {
	RuleID   string         `json:"rule_id"`
	Violated bool           `json:"violated"`
	Category Category       `json:"category,omitempty"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// RuleResultFromViolation wraps a violation as a violated rule result. The
// violation severity is carried in the evidence unless the evidence already
// names one.
func RuleResultFromViolation(v Violation) RuleResult {
	evidence := CloneMap(v.Evidence)
	if evidence == nil {
		evidence = make(map[string]any)
	}
	if _, ok := evidence["severity"]; !ok && v.Severity != "" {
		evidence["severity"] = string(v.Severity)
	}
	return RuleResult{
		RuleID:   v.RuleID,
		Violated: true,
		Category: v.Category,
		Evidence: evidence,
	}
}

// CloneMap deep-copies a JSON-shaped map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i := range t {
			out[i] = CloneMap(t[i])
		}
		return out
	default:
		return v
	}
}
