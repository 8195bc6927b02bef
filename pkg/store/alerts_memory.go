package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
)

type stagedOp struct {
	kind  opKind
	alert *contracts.AlertRecord
}

// MemoryAlertRepository is an in-process AlertRepository. Writes are staged
// and become visible to ListForProject on Commit.
type MemoryAlertRepository struct {
	mu      sync.RWMutex
	alerts  map[string]*contracts.AlertRecord
	staged  []stagedOp
	commits int
}

// NewMemoryAlertRepository creates an empty repository.
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{alerts: make(map[string]*contracts.AlertRecord)}
}

// Seed stores alerts directly, bypassing staging.
func (r *MemoryAlertRepository) Seed(alerts ...*contracts.AlertRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range alerts {
		r.alerts[a.ID] = a.Clone()
	}
}

func (r *MemoryAlertRepository) ListForProject(ctx context.Context, projectID, cursor string, limit int) (*contracts.AlertPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.alerts))
	for id, a := range r.alerts {
		if a.ProjectID == projectID && id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &contracts.AlertPage{}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
		page.HasMore = true
		page.NextCursor = ids[len(ids)-1]
	}
	page.Items = make([]*contracts.AlertRecord, 0, len(ids))
	for _, id := range ids {
		page.Items = append(page.Items, r.alerts[id].Clone())
	}
	return page, nil
}

func (r *MemoryAlertRepository) Create(ctx context.Context, alert *contracts.AlertRecord) (*contracts.AlertRecord, error) {
	if alert.ID == "" {
		return nil, fmt.Errorf("create alert: missing id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.alerts[alert.ID]; exists || r.stagedCreate(alert.ID) {
		return nil, fmt.Errorf("create alert %s: already exists", alert.ID)
	}
	r.staged = append(r.staged, stagedOp{kind: opCreate, alert: alert.Clone()})
	return alert.Clone(), nil
}

func (r *MemoryAlertRepository) Update(ctx context.Context, alert *contracts.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.alerts[alert.ID]; !exists && !r.stagedCreate(alert.ID) {
		return fmt.Errorf("update alert %s: %w", alert.ID, contracts.ErrNotFound)
	}
	r.staged = append(r.staged, stagedOp{kind: opUpdate, alert: alert.Clone()})
	return nil
}

func (r *MemoryAlertRepository) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range r.staged {
		r.alerts[op.alert.ID] = op.alert
	}
	r.staged = nil
	r.commits++
	return nil
}

func (r *MemoryAlertRepository) Rollback(ctx context.Context) error {
	r.mu.Lock()
	r.staged = nil
	r.mu.Unlock()
	return nil
}

// Pending reports the number of staged, uncommitted writes.
func (r *MemoryAlertRepository) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.staged)
}

// Get returns a committed alert by id.
func (r *MemoryAlertRepository) Get(ctx context.Context, id string) (*contracts.AlertRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return a.Clone(), nil
}

// All returns every committed alert of a project ordered by id.
func (r *MemoryAlertRepository) All(projectID string) []*contracts.AlertRecord {
	page, _ := r.ListForProject(context.Background(), projectID, "", 0)
	return page.Items
}

// Commits reports how many times Commit was called.
func (r *MemoryAlertRepository) Commits() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commits
}

func (r *MemoryAlertRepository) stagedCreate(id string) bool {
	for _, op := range r.staged {
		if op.kind == opCreate && op.alert.ID == id {
			return true
		}
	}
	return false
}
