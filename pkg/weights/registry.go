package weights

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Registry stores named weight profiles along with every revision of each.
// All returned profiles are copies; mutating them never affects the registry.
type Registry struct {
	mu      sync.RWMutex
	history map[string][]Profile
	clock   func() time.Time
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used to stamp revisions.
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger overrides the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry seeded with the built-in default profile.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		history: make(map[string][]Profile),
		clock:   time.Now,
		logger:  slog.Default().With("component", "weights"),
	}
	for _, opt := range opts {
		opt(r)
	}
	def := DefaultProfile()
	def.Revision = 1
	def.CreatedAt = r.clock()
	r.history[def.Name] = []Profile{def}
	return r
}

// Create validates and stores a new profile. With normalize set, incomplete
// or unbalanced weights are normalized instead of rejected.
func (r *Registry) Create(p Profile, normalize bool) (Profile, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Profile{}, fmt.Errorf("create profile: name is required")
	}
	resolved, err := resolve(p.Weights, normalize)
	if err != nil {
		return Profile{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.history[name]; exists {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileExists, name)
	}
	stored := Profile{
		Name:        name,
		ProjectType: p.ProjectType,
		Weights:     resolved,
		Revision:    1,
		CreatedAt:   r.clock(),
	}
	r.history[name] = []Profile{stored}
	r.logger.Info("weight profile created", "profile", name, "project_type", p.ProjectType, "normalized", normalize)
	return stored.Clone(), nil
}

// Update re-validates weights and appends a new revision of the named
// profile. Earlier revisions are kept.
func (r *Registry) Update(name string, w map[contracts.Category]float64, normalize bool) (Profile, error) {
	resolved, err := resolve(w, normalize)
	if err != nil {
		return Profile{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	revisions, ok := r.history[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	current := revisions[len(revisions)-1]
	next := Profile{
		Name:        name,
		ProjectType: current.ProjectType,
		Weights:     resolved,
		Revision:    current.Revision + 1,
		CreatedAt:   r.clock(),
	}
	r.history[name] = append(revisions, next)
	r.logger.Info("weight profile updated", "profile", name, "revision", next.Revision)
	return next.Clone(), nil
}

// Get returns the current revision of the named profile.
func (r *Registry) Get(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revisions, ok := r.history[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return revisions[len(revisions)-1].Clone(), nil
}

// GetByProjectType returns the profile tagged with projectType, or the
// default profile when none matches. Ties are broken by profile name.
func (r *Registry) GetByProjectType(projectType string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if projectType != "" {
		for _, name := range r.sortedNames() {
			current := r.history[name][len(r.history[name])-1]
			if strings.EqualFold(current.ProjectType, projectType) {
				return current.Clone()
			}
		}
	}
	if revisions, ok := r.history[DefaultProfileName]; ok {
		return revisions[len(revisions)-1].Clone()
	}
	return DefaultProfile()
}

// History returns every revision of the named profile in creation order.
func (r *Registry) History(name string) ([]Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revisions, ok := r.history[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	out := make([]Profile, len(revisions))
	for i, p := range revisions {
		out[i] = p.Clone()
	}
	return out, nil
}

// List returns the current revision of every profile sorted by name.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sortedNames()
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		revisions := r.history[name]
		out = append(out, revisions[len(revisions)-1].Clone())
	}
	return out
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.history))
	for name := range r.history {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolve(w map[contracts.Category]float64, normalize bool) (map[contracts.Category]float64, error) {
	if err := checkKeys(w); err != nil {
		return nil, err
	}
	if !normalize {
		if err := Validate(w); err != nil {
			return nil, err
		}
		return cloneWeights(w), nil
	}
	return Normalize(w, contracts.AllCategories())
}
