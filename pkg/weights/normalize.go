package weights

import (
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Validate checks a full weight set without modifying it: every category
// must be present, non-negative, and the total must be 1.0.
func Validate(w map[contracts.Category]float64) error {
	if err := checkKeys(w); err != nil {
		return err
	}
	var missing []contracts.Category
	for _, c := range contracts.AllCategories() {
		if _, ok := w[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return missingError(missing)
	}
	if total := sum(w); !SumsToOne(total) {
		return sumError(total)
	}
	return nil
}

// Normalize resolves w into weights over scope that sum to 1.0. Weights for
// categories outside scope are ignored. Branches, in order:
//
//  1. every specified weight is zero (or none is specified): equal split;
//  2. some scope categories unspecified: keep the specified weights and split
//     the remainder equally across the unspecified ones, failing if the
//     specified weights already exceed 1.0;
//  3. full coverage: scale proportionally so the total is exactly 1.0.
func Normalize(w map[contracts.Category]float64, scope []contracts.Category) (map[contracts.Category]float64, error) {
	specified := make(map[contracts.Category]float64, len(scope))
	total := 0.0
	var missing []contracts.Category
	for _, c := range scope {
		v, ok := w[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		if v < 0 {
			return nil, negativeError(c, v)
		}
		specified[c] = v
		total += v
	}

	if total == 0 {
		return Equal(scope), nil
	}

	if len(missing) > 0 {
		if total > 1.0+Tolerance {
			return nil, sumError(total)
		}
		remainder := 1.0 - total
		if remainder < 0 {
			remainder = 0
		}
		share := remainder / float64(len(missing))
		for _, c := range missing {
			specified[c] = share
		}
		return specified, nil
	}

	if SumsToOne(total) {
		return specified, nil
	}
	for c, v := range specified {
		specified[c] = v / total
	}
	return specified, nil
}

func checkKeys(w map[contracts.Category]float64) error {
	for _, c := range contracts.AllCategories() {
		if v, ok := w[c]; ok && v < 0 {
			return negativeError(c, v)
		}
	}
	for c := range w {
		if !c.Valid() {
			return unknownError(c)
		}
	}
	return nil
}
