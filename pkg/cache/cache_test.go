package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

func result(project string, score int) *contracts.CalculationResult {
	return &contracts.CalculationResult{
		ProjectID:      project,
		GlobalScore:    score,
		RawGlobalScore: float64(score),
		CategoryScores: map[contracts.Category]float64{contracts.CategoryBudget: float64(score)},
		CategoryViolations: map[contracts.Category][]contracts.Violation{
			contracts.CategoryBudget: {{RuleID: "budget_overrun", Severity: contracts.SeverityHigh, Category: contracts.CategoryBudget}},
		},
		GamingViolations: []string{"mass_changes"},
		CalculatedAt:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func cacheContract(t *testing.T, c contracts.ResultCache) {
	ctx := context.Background()

	got, ok, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, result("p1", 80)))
	require.NoError(t, c.Set(ctx, result("p2", 60)))

	got, ok, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 80, got.GlobalScore)
	assert.Equal(t, 80.0, got.CategoryScores[contracts.CategoryBudget])
	assert.Equal(t, []string{"mass_changes"}, got.GamingViolations)

	require.NoError(t, c.Delete(ctx, "p1"))
	_, ok, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Contract(t *testing.T) {
	cacheContract(t, NewMemoryCache())
}

func TestMemoryCache_IsolatesEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	in := result("p1", 80)
	require.NoError(t, c.Set(ctx, in))

	in.CategoryScores[contracts.CategoryBudget] = 0
	got, _, _ := c.Get(ctx, "p1")
	assert.Equal(t, 80.0, got.CategoryScores[contracts.CategoryBudget])

	got.CategoryViolations[contracts.CategoryBudget][0].RuleID = "mutated"
	again, _, _ := c.Get(ctx, "p1")
	assert.Equal(t, "budget_overrun", again.CategoryViolations[contracts.CategoryBudget][0].RuleID)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_ = c.Set(ctx, result(fmt.Sprintf("p%d", i%5), i))
		}(i)
		go func(i int) {
			defer wg.Done()
			if r, ok, _ := c.Get(ctx, fmt.Sprintf("p%d", i%5)); ok {
				assert.NotNil(t, r.CategoryScores)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = c.Delete(ctx, fmt.Sprintf("p%d", i%5))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 5)
}

// TestRedisCache_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisCache_Integration(t *testing.T) {
	c := NewRedisCache("localhost:6379", "", 0, time.Minute)
	defer func() { _ = c.Close() }()
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	c.prefix = fmt.Sprintf("coherence:test:%d:", time.Now().UnixNano())
	cacheContract(t, c)
}
