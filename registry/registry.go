package registry

import (
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry is the in-memory capability store. All methods are safe for
// concurrent use.
type Registry struct {
	mu sync.RWMutex

	// workers stores records by worker id.
	workers map[string]*Capability

	// skillIndex maps skill -> worker id set.
	skillIndex map[string]map[string]struct{}

	logger *zap.Logger
	now    func() time.Time
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		workers:    make(map[string]*Capability),
		skillIndex: make(map[string]map[string]struct{}),
		logger:     logger.With(zap.String("component", "capability_registry")),
		now:        time.Now,
	}
}

// Register inserts a fresh record for id. Registering an existing id
// overwrites it, resetting scores and collaboration history.
func (r *Registry) Register(id, name string, skills []string) Capability {
	now := r.now()
	c := &Capability{
		WorkerID:         id,
		Name:             name,
		Skills:           dedupe(skills),
		PerformanceScore: InitialPerformance,
		Available:        true,
		CurrentLoad:      0,
		RegisteredAt:     now,
		UpdatedAt:        now,
		Collaborations:   make(map[string]int),
	}

	r.mu.Lock()
	if old, ok := r.workers[id]; ok {
		r.unindex(old)
	}
	r.workers[id] = c
	r.index(c)
	out := c.clone()
	r.mu.Unlock()

	r.logger.Info("worker registered",
		zap.String("worker_id", id),
		zap.Strings("skills", c.Skills),
	)
	return out
}

// Unregister removes id. It reports whether the worker was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	c, ok := r.workers[id]
	if ok {
		r.unindex(c)
		delete(r.workers, id)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("worker unregistered", zap.String("worker_id", id))
	}
	return ok
}

// Update applies mutate to the record for id and clamps the scores
// afterwards. Unknown ids are ignored; the return value reports whether the
// update was applied. Skills must not be changed through Update.
func (r *Registry) Update(id string, mutate func(*Capability)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.workers[id]
	if !ok {
		return false
	}
	mutate(c)
	c.normalize()
	c.UpdatedAt = r.now()
	return true
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.workers[id]
	if !ok {
		return Capability{}, false
	}
	return c.clone(), true
}

// Snapshot returns copies of all records ordered by worker id.
func (r *Registry) Snapshot() []Capability {
	r.mu.RLock()
	out := make([]Capability, 0, len(r.workers))
	for _, c := range r.workers {
		out = append(out, c.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// WorkersWithSkill returns the sorted ids of workers advertising skill.
func (r *Registry) WorkersWithSkill(skill string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.skillIndex[skill]))
	for id := range r.skillIndex[skill] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// RecordCollaboration increments the joint-completion counter of the pair
// when success is true. It never decrements, and pairs involving an unknown
// worker only update the known side.
func (r *Registry) RecordCollaboration(a, b string, success bool) {
	if !success || a == b {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if c, ok := r.workers[a]; ok {
		c.Collaborations[b]++
		c.UpdatedAt = now
	}
	if c, ok := r.workers[b]; ok {
		c.Collaborations[a]++
		c.UpdatedAt = now
	}
}

// CollaborationScore returns how many tasks a and b completed together.
func (r *Registry) CollaborationScore(a, b string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.workers[a]; ok {
		return c.Collaborations[b]
	}
	if c, ok := r.workers[b]; ok {
		return c.Collaborations[a]
	}
	return 0
}

func (r *Registry) index(c *Capability) {
	for _, s := range c.Skills {
		set, ok := r.skillIndex[s]
		if !ok {
			set = make(map[string]struct{})
			r.skillIndex[s] = set
		}
		set[c.WorkerID] = struct{}{}
	}
}

func (r *Registry) unindex(c *Capability) {
	for _, s := range c.Skills {
		if set, ok := r.skillIndex[s]; ok {
			delete(set, c.WorkerID)
			if len(set) == 0 {
				delete(r.skillIndex, s)
			}
		}
	}
}

func dedupe(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
