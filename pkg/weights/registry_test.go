package weights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRegistry_DefaultProfile(t *testing.T) {
	r := NewRegistry()

	p, err := r.Get(DefaultProfileName)
	require.NoError(t, err)
	for _, c := range contracts.AllCategories() {
		assert.Equal(t, 1.0/6.0, p.Weights[c])
	}
}

func TestRegistry_CreateStrictRejectsIncomplete(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(Profile{
		Name:    "budget-heavy",
		Weights: map[contracts.Category]float64{contracts.CategoryBudget: 0.3},
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing category weights")

	_, err = r.Get("budget-heavy")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRegistry_CreateNormalized(t *testing.T) {
	r := NewRegistry()

	p, err := r.Create(Profile{
		Name:        "budget-heavy",
		ProjectType: "infrastructure",
		Weights:     map[contracts.Category]float64{contracts.CategoryBudget: 0.3},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 0.3, p.Weights[contracts.CategoryBudget])
	assert.InDelta(t, 0.14, p.Weights[contracts.CategoryTime], 1e-12)
	assert.Equal(t, 1, p.Revision)
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Profile{Name: DefaultProfileName}, true)
	assert.ErrorIs(t, err, ErrProfileExists)
}

func TestRegistry_GetReturnsDefensiveCopy(t *testing.T) {
	r := NewRegistry()
	p, err := r.Get(DefaultProfileName)
	require.NoError(t, err)

	p.Weights[contracts.CategoryBudget] = 0.99
	delete(p.Weights, contracts.CategoryLegal)

	again, err := r.Get(DefaultProfileName)
	require.NoError(t, err)
	assert.Equal(t, 1.0/6.0, again.Weights[contracts.CategoryBudget])
	assert.Contains(t, again.Weights, contracts.CategoryLegal)
}

func TestRegistry_UpdateAppendsHistory(t *testing.T) {
	r := NewRegistry(WithClock(fixedClock()))
	_, err := r.Create(Profile{Name: "legal", ProjectType: "public-tender"}, true)
	require.NoError(t, err)

	updated, err := r.Update("legal", map[contracts.Category]float64{contracts.CategoryLegal: 0.5}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Revision)
	assert.Equal(t, "public-tender", updated.ProjectType)
	assert.Equal(t, 0.5, updated.Weights[contracts.CategoryLegal])

	history, err := r.History("legal")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1.0/6.0, history[0].Weights[contracts.CategoryLegal])
	assert.Equal(t, 0.5, history[1].Weights[contracts.CategoryLegal])
	assert.True(t, history[0].CreatedAt.Before(history[1].CreatedAt))
}

func TestRegistry_UpdateValidationKeepsCurrent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Update(DefaultProfileName, map[contracts.Category]float64{contracts.CategoryLegal: 0.5}, false)
	require.ErrorIs(t, err, ErrValidation)

	history, err := r.History(DefaultProfileName)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRegistry_UpdateUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Update("nope", nil, true)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRegistry_GetByProjectType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Profile{
		Name:        "residential",
		ProjectType: "Residential",
		Weights:     map[contracts.Category]float64{contracts.CategoryQuality: 0.4},
	}, true)
	require.NoError(t, err)

	p := r.GetByProjectType("residential")
	assert.Equal(t, "residential", p.Name)

	fallback := r.GetByProjectType("bridge")
	assert.Equal(t, DefaultProfileName, fallback.Name)

	assert.Equal(t, DefaultProfileName, r.GetByProjectType("").Name)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Profile{Name: "alpha"}, true)
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, DefaultProfileName, list[1].Name)
}
