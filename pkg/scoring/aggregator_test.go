package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

func profile(w map[contracts.Category]float64) *weights.Profile {
	return &weights.Profile{Name: "test", Weights: w}
}

func TestCalculateGlobal_Empty(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(map[contracts.Category]float64{}, profile(map[contracts.Category]float64{contracts.CategoryBudget: 5}), false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestCalculateGlobal_Scenario(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(
		map[contracts.Category]float64{
			contracts.CategoryBudget: 80,
			contracts.CategoryTime:   90,
			contracts.CategoryScope:  70,
		},
		profile(map[contracts.Category]float64{
			contracts.CategoryBudget: 0.30,
			contracts.CategoryTime:   0.30,
			contracts.CategoryScope:  0.40,
		}),
		true,
	)
	require.NoError(t, err)
	assert.Equal(t, 79.0, got)
}

func TestCalculateGlobal_EqualWhenNoProfile(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(map[contracts.Category]float64{
		contracts.CategoryBudget: 80,
		contracts.CategoryTime:   60,
	}, nil, true)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, got, 1e-9)
}

func TestCalculateGlobal_NoMatchingWeightsFallsBackToEqual(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(
		map[contracts.Category]float64{contracts.CategoryBudget: 50, contracts.CategoryTime: 100},
		profile(map[contracts.Category]float64{contracts.CategoryLegal: 1.0}),
		false,
	)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, got, 1e-9)
}

func TestCalculateGlobal_RescalesFullProfileToPresent(t *testing.T) {
	a := NewAggregator()
	full := weights.DefaultProfile()
	got, err := a.CalculateGlobal(
		map[contracts.Category]float64{contracts.CategoryBudget: 40, contracts.CategoryTime: 80},
		&full,
		true,
	)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, got, 1e-9)
}

func TestCalculateGlobal_PartialWeightsDistributeRemainder(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(
		map[contracts.Category]float64{
			contracts.CategoryBudget: 100,
			contracts.CategoryTime:   0,
			contracts.CategoryScope:  0,
		},
		profile(map[contracts.Category]float64{contracts.CategoryBudget: 0.5}),
		true,
	)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestCalculateGlobal_StrictRejectsBadSum(t *testing.T) {
	a := NewAggregator()
	_, err := a.CalculateGlobal(
		map[contracts.Category]float64{contracts.CategoryBudget: 50, contracts.CategoryTime: 100},
		profile(map[contracts.Category]float64{contracts.CategoryBudget: 0.2, contracts.CategoryTime: 0.2}),
		false,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, weights.ErrValidation)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestCalculateGlobal_ClampsSubscores(t *testing.T) {
	a := NewAggregator()
	got, err := a.CalculateGlobal(map[contracts.Category]float64{
		contracts.CategoryBudget: 150,
		contracts.CategoryTime:   -40,
	}, nil, true)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestCalculateGlobal_AllHundredAndAllZero(t *testing.T) {
	a := NewAggregator()
	w := profile(map[contracts.Category]float64{
		contracts.CategoryScope:     0.1,
		contracts.CategoryBudget:    0.2,
		contracts.CategoryQuality:   0.3,
		contracts.CategoryTechnical: 0.05,
		contracts.CategoryLegal:     0.15,
		contracts.CategoryTime:      0.7,
	})

	hundred := map[contracts.Category]float64{}
	zero := map[contracts.Category]float64{}
	for _, c := range contracts.AllCategories() {
		hundred[c] = 100
		zero[c] = 0
	}

	got, err := a.CalculateGlobal(hundred, w, true)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)

	got, err = a.CalculateGlobal(zero, w, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestAggregator_WeightHistory(t *testing.T) {
	a := NewAggregator(WithHistory())
	_, err := a.CalculateGlobal(map[contracts.Category]float64{contracts.CategoryBudget: 80}, nil, true)
	require.NoError(t, err)
	_, err = a.CalculateGlobal(map[contracts.Category]float64{contracts.CategoryTime: 80}, profile(map[contracts.Category]float64{contracts.CategoryTime: 1}), true)
	require.NoError(t, err)

	history := a.WeightHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "", history[0].Name)
	assert.Equal(t, 1.0, history[0].Weights[contracts.CategoryBudget])
	assert.Equal(t, "test", history[1].Name)

	history[0].Weights[contracts.CategoryBudget] = 0
	assert.Equal(t, 1.0, a.WeightHistory()[0].Weights[contracts.CategoryBudget])
}

func TestAggregator_NoHistoryByDefault(t *testing.T) {
	a := NewAggregator()
	_, err := a.CalculateGlobal(map[contracts.Category]float64{contracts.CategoryBudget: 80}, nil, true)
	require.NoError(t, err)
	assert.Empty(t, a.WeightHistory())
}
