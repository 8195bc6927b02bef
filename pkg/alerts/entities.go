package alerts

import (
	"github.com/google/uuid"
)

func scheduleItems(keys ...string) EntityExtractor {
	return idsUnder(EntityScheduleItems, keys...)
}

func materials(keys ...string) EntityExtractor {
	return idsUnder(EntityMaterials, keys...)
}

// idsUnder collects every valid UUID found under keys, as a scalar or a list,
// into entity.
func idsUnder(entity string, keys ...string) EntityExtractor {
	return func(evidence map[string]any) map[string][]string {
		var ids []string
		for _, k := range keys {
			ids = append(ids, uuidValues(evidence[k])...)
		}
		ids = uniqueStrings(ids)
		if len(ids) == 0 {
			return nil
		}
		return map[string][]string{entity: ids}
	}
}

// uuidValues returns the canonical form of every valid UUID in v. Anything
// else is dropped.
func uuidValues(v any) []string {
	switch t := v.(type) {
	case string:
		if id, ok := canonicalUUID(t); ok {
			return []string{id}
		}
	case []string:
		var out []string
		for _, s := range t {
			if id, ok := canonicalUUID(s); ok {
				out = append(out, id)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				if id, ok := canonicalUUID(s); ok {
					out = append(out, id)
				}
			}
		}
		return out
	}
	return nil
}

func canonicalUUID(s string) (string, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
