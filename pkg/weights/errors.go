package weights

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation      = errors.New("weight validation failed")
	ErrProfileNotFound = errors.New("weight profile not found")
	ErrProfileExists   = errors.New("weight profile already exists")
)

// ValidationKind names the violated weight invariant.
type ValidationKind string

const (
	KindWeightSum         ValidationKind = "weight_sum"
	KindMissingCategories ValidationKind = "missing_categories"
	KindNegativeWeight    ValidationKind = "negative_weight"
	KindUnknownCategory   ValidationKind = "unknown_category"
)

// ValidationError describes exactly which weight invariant was violated.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return "weight validation failed: " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func sumError(sum float64) error {
	return &ValidationError{
		Kind:    KindWeightSum,
		Message: fmt.Sprintf("Weights must sum to 1.0 (got %.6f)", sum),
	}
}

func missingError(missing []contracts.Category) error {
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = string(c)
	}
	return &ValidationError{
		Kind:    KindMissingCategories,
		Message: "Missing category weights: " + strings.Join(names, ", "),
	}
}

func negativeError(c contracts.Category, w float64) error {
	return &ValidationError{
		Kind:    KindNegativeWeight,
		Message: fmt.Sprintf("Weight for %s must be non-negative (got %g)", c, w),
	}
}

func unknownError(c contracts.Category) error {
	return &ValidationError{
		Kind:    KindUnknownCategory,
		Message: fmt.Sprintf("Unknown category %q", string(c)),
	}
}
