// Package cache provides ResultCache adapters: a guarded in-process map for
// single-process deployments and Redis for shared deployments.
package cache

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// MemoryCache is a concurrency-safe in-process ResultCache. Entries are
// cloned on the way in and out, so a stored value is never shared.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*contracts.CalculationResult
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*contracts.CalculationResult)}
}

func (c *MemoryCache) Get(_ context.Context, projectID string) (*contracts.CalculationResult, bool, error) {
	c.mu.RLock()
	r, ok := c.entries[projectID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, result *contracts.CalculationResult) error {
	cp := result.Clone()
	c.mu.Lock()
	c.entries[result.ProjectID] = cp
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, projectID string) error {
	c.mu.Lock()
	delete(c.entries, projectID)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*contracts.CalculationResult)
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached projects.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
