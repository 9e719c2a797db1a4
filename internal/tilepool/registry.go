package tilepool

import "sync"

// Registry is the injectable source→Manager table owned by the scheduler.
// Its lifecycle is tied to the scheduler's own construction and teardown;
// there is no ambient state.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

func (r *Registry) Register(source string, m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[source] = m
}

func (r *Registry) Manager(source string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[source]
	return m, ok
}

// InvalidateAll forces every manager to re-fetch on next acquire.
func (r *Registry) InvalidateAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.managers {
		m.InvalidateAll()
	}
}

// Loaded reports quiescence across all sources.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.managers {
		if !m.Loaded() {
			return false
		}
	}
	return true
}
